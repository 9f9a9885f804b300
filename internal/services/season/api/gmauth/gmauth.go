// Package gmauth issues and verifies the bearer tokens accepted by the season
// APIs. Game masters hold tokens with the gm role; players hold tokens scoped
// to one season whose subject is their player id.
package gmauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/platform/id"
)

// Role is the caller's authority.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

const (
	defaultIssuer   = "outlast-season"
	defaultAudience = "outlast-api"
	defaultTTL      = 12 * time.Hour
	minSecretBytes  = 16
)

// Config defines how tokens are signed and verified.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = defaultIssuer
	}
	if c.Audience == "" {
		c.Audience = defaultAudience
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks that the secret is usable.
func (c Config) Validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("gm token secret must be at least %d bytes", minSecretBytes)
	}
	return nil
}

// Claims is a verified caller identity.
type Claims struct {
	Subject   string
	Role      Role
	SeasonID  string
	ExpiresAt time.Time
}

// CanAct reports whether the caller may act as playerID in seasonID.
func (c Claims) CanAct(seasonID, playerID string) bool {
	if c.Role == RoleGM {
		return true
	}
	return c.Role == RolePlayer && c.SeasonID == seasonID && c.Subject == playerID
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role     Role   `json:"role"`
	SeasonID string `json:"season_id,omitempty"`
}

// Issue signs a token for subject.
func Issue(cfg Config, subject string, role Role, seasonID string) (string, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if role == RolePlayer && strings.TrimSpace(seasonID) == "" {
		return "", errors.New("player tokens require a season id")
	}
	jti, err := id.NewID()
	if err != nil {
		return "", err
	}
	now := cfg.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
		Role:     role,
		SeasonID: strings.TrimSpace(seasonID),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// Verify parses token and checks its signature, issuer, audience and
// lifetime.
func Verify(cfg Config, token string) (Claims, error) {
	cfg = cfg.withDefaults()
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	if err := cfg.Validate(); err != nil {
		return Claims{}, err
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	switch parsed.Role {
	case RoleGM:
	case RolePlayer:
		if parsed.SeasonID == "" {
			return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "player token has no season")
		}
	default:
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token role is invalid")
	}
	if parsed.Subject == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token subject is required")
	}
	return Claims{
		Subject:   parsed.Subject,
		Role:      parsed.Role,
		SeasonID:  parsed.SeasonID,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.New(apperrors.CodeUnauthenticated, "token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.New(apperrors.CodeUnauthenticated, "token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.New(apperrors.CodeUnauthenticated, "token alg is invalid")
	default:
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is invalid", err)
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type claimsKey struct{}

// WithClaims stores verified claims on ctx.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}

// Authenticate verifies the request's bearer token and stores its claims on
// the request context. onError renders rejections.
func Authenticate(cfg Config, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Verify(cfg, BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireGM rejects callers without the gm role. It must run after
// Authenticate.
func RequireGM(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				onError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required"))
				return
			}
			if claims.Role != RoleGM {
				onError(w, r, apperrors.New(apperrors.CodePermissionDenied, "game master role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
