package control

import (
	"context"
	"errors"

	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the control plane with a game master token.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

// NewClient wraps conn. token is sent as a bearer credential on every call.
func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

// GetSeason fetches the season row.
func (c *Client) GetSeason(ctx context.Context, seasonID string) (season.Season, error) {
	var out season.Season
	err := c.call(ctx, methodGetSeason, seasonRequest{SeasonID: seasonID}, &out)
	return out, err
}

// ControlRequest is an operator signal sent by Control.
type ControlRequest struct {
	SeasonID string
	Signal   service.Signal
	Duration string
	Name     string
	Note     string
}

// Control applies an operator signal and returns the updated season.
func (c *Client) Control(ctx context.Context, req ControlRequest) (season.Season, error) {
	var out season.Season
	err := c.call(ctx, methodControl, controlRequest{
		SeasonID: req.SeasonID,
		Signal:   string(req.Signal),
		Duration: req.Duration,
		Name:     req.Name,
		Note:     req.Note,
	}, &out)
	return out, err
}

// VerifyChain asks the server to recompute the season's event chain.
func (c *Client) VerifyChain(ctx context.Context, seasonID string) (storage.ChainReport, error) {
	var out storage.ChainReport
	err := c.call(ctx, methodVerifyChain, seasonRequest{SeasonID: seasonID}, &out)
	return out, err
}

// VoteRound fetches a round's tally.
func (c *Client) VoteRound(ctx context.Context, seasonID string, day int, round vote.Round) (service.VoteAudit, error) {
	var out service.VoteAudit
	err := c.call(ctx, methodVoteRound, voteRoundRequest{SeasonID: seasonID, Day: day, Round: string(round)}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method string, req, out any) error {
	if c == nil || c.conn == nil {
		return errors.New("control client is not configured")
	}
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}
