package control

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/api/gmauth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// AuthInterceptor requires a game master bearer token on every control plane
// call. Other services on the same server, such as health, pass through.
func AuthInterceptor(cfg gmauth.Config) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info == nil || !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		claims, err := gmauth.Verify(cfg, bearerFromMetadata(ctx))
		if err != nil {
			return nil, handle(ctx, err)
		}
		if claims.Role != gmauth.RoleGM {
			return nil, handle(ctx, apperrors.New(apperrors.CodePermissionDenied, "game master role required"))
		}
		return handler(gmauth.WithClaims(ctx, claims), req)
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return gmauth.BearerToken(values[0])
}
