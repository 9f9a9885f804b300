// Package control exposes the operator control plane over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/platform/errors/i18n"
	"github.com/louisbranch/outlast/internal/services/season/api/gmauth"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "outlast.season.v1.SeasonControl"

const (
	methodGetSeason   = "GetSeason"
	methodControl     = "Control"
	methodVerifyChain = "VerifyChain"
	methodVoteRound   = "VoteRound"
)

// Service implements the control plane over the season service.
type Service struct {
	svc *service.Service
}

// NewService creates the control plane service.
func NewService(svc *service.Service) *Service {
	return &Service{svc: svc}
}

// Register attaches the service to server.
func Register(server grpc.ServiceRegistrar, s *Service) {
	server.RegisterService(&serviceDesc, s)
}

type seasonRequest struct {
	SeasonID string `json:"season_id"`
}

type controlRequest struct {
	SeasonID string `json:"season_id"`
	Signal   string `json:"signal"`
	Duration string `json:"duration,omitempty"`
	Name     string `json:"name,omitempty"`
	Note     string `json:"note,omitempty"`
}

type voteRoundRequest struct {
	SeasonID string `json:"season_id"`
	Day      int    `json:"day"`
	Round    string `json:"round"`
}

// GetSeason returns the season row.
func (s *Service) GetSeason(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req seasonRequest
	if err := decode(in, &req); err != nil {
		return nil, handle(ctx, err)
	}
	sn, err := s.svc.GetSeason(ctx, req.SeasonID)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return encode(ctx, sn)
}

// Control applies an operator signal.
func (s *Service) Control(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req controlRequest
	if err := decode(in, &req); err != nil {
		return nil, handle(ctx, err)
	}
	sig, err := service.ParseSignal(req.Signal)
	if err != nil {
		return nil, handle(ctx, err)
	}
	var d time.Duration
	if strings.TrimSpace(req.Duration) != "" {
		d, err = time.ParseDuration(req.Duration)
		if err != nil {
			return nil, handle(ctx, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "duration is invalid", map[string]string{"Field": "duration"}))
		}
	}
	claims, _ := gmauth.ClaimsFromContext(ctx)
	sn, err := s.svc.Control(ctx, service.ControlInput{
		SeasonID: req.SeasonID,
		Signal:   sig,
		Duration: d,
		Name:     req.Name,
		Note:     req.Note,
		ActorID:  claims.Subject,
	})
	if err != nil {
		return nil, handle(ctx, err)
	}
	return encode(ctx, sn)
}

// VerifyChain recomputes the season's event chain.
func (s *Service) VerifyChain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req seasonRequest
	if err := decode(in, &req); err != nil {
		return nil, handle(ctx, err)
	}
	report, err := s.svc.VerifyChain(ctx, req.SeasonID)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return encode(ctx, report)
}

// VoteRound returns a round's tally and, once tallied, its ballots.
func (s *Service) VoteRound(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req voteRoundRequest
	if err := decode(in, &req); err != nil {
		return nil, handle(ctx, err)
	}
	audit, err := s.svc.VoteRound(ctx, req.SeasonID, req.Day, vote.Round(req.Round))
	if err != nil {
		return nil, handle(ctx, err)
	}
	return encode(ctx, audit)
}

// Locale resolves the caller's error message locale from request metadata.
func Locale(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return apperrors.DefaultLocale
	}
	values := md.Get("accept-language")
	if len(values) == 0 {
		return apperrors.DefaultLocale
	}
	return i18n.MatchLocale(values[0])
}

func handle(ctx context.Context, err error) error {
	return apperrors.HandleError(err, Locale(ctx))
}

func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "request is required")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "request is not valid JSON", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("invalid request: %v", err), err)
	}
	return nil
}

func encode(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, handle(ctx, err)
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type controlServer interface {
	GetSeason(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Control(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VoteRound(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(controlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(controlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(controlServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(methodGetSeason, controlServer.GetSeason),
		unaryHandler(methodControl, controlServer.Control),
		unaryHandler(methodVerifyChain, controlServer.VerifyChain),
		unaryHandler(methodVoteRound, controlServer.VoteRound),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "outlast/season/v1/control.proto",
}
