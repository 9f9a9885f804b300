// Package rest serves the season HTTP API: player actions, GM control, audit
// reads, and the live notice stream.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/platform/errors/i18n"
	"github.com/louisbranch/outlast/internal/services/season/api/gmauth"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// LiveServer upgrades a request to the season's notice stream.
type LiveServer interface {
	Serve(w http.ResponseWriter, r *http.Request, seasonID string, afterSeq uint64)
}

// Handler routes season API requests.
type Handler struct {
	svc    *service.Service
	live   LiveServer
	auth   gmauth.Config
	logger zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLive wires the websocket notice stream.
func WithLive(live LiveServer) Option {
	return func(h *Handler) {
		h.live = live
	}
}

// WithLogger sets the request error logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger.With().Str("component", "http_api").Logger()
	}
}

// NewHandler builds the router. Reads are public so auditors need no
// credentials; every write requires a bearer token.
func NewHandler(svc *service.Service, auth gmauth.Config, opts ...Option) http.Handler {
	h := &Handler{svc: svc, auth: auth, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/seasons", func(r chi.Router) {
		r.Get("/", h.listSeasons)
		r.With(gmauth.Authenticate(auth, h.writeError), gmauth.RequireGM(h.writeError)).Post("/", h.createSeason)

		r.Route("/{seasonID}", func(r chi.Router) {
			r.Get("/", h.getSeason)
			r.Get("/players", h.listPlayers)
			r.Get("/players/{playerID}/state", h.getDailyState)
			r.Get("/events", h.listEvents)
			r.Get("/verify", h.verifyChain)
			r.Get("/challenges/{day}", h.listChallenges)
			r.Get("/challenges/{day}/{round}", h.getChallenge)
			r.Get("/votes/{day}/{round}", h.getVoteRound)
			r.Get("/attempts", h.listAttempts)
			r.Get("/summaries", h.listSummaries)
			r.Get("/eliminations", h.listEliminations)
			r.Get("/live", h.serveLive)

			r.Group(func(r chi.Router) {
				r.Use(gmauth.Authenticate(auth, h.writeError))
				r.Post("/commit", h.commitSeed)
				r.Post("/reveal", h.revealSeed)
				r.Post("/votes", h.castVote)
				r.Post("/idols", h.playIdol)
				r.Post("/companion", h.selectCompanion)

				r.Group(func(r chi.Router) {
					r.Use(gmauth.RequireGM(h.writeError))
					r.Post("/start", h.startSeason)
					r.Post("/control", h.control)
					r.Post("/players/{playerID}/delta", h.applyDelta)
				})
			})
		})
	})
	return r
}

// writeJSON writes JSON responses with a consistent content type.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, problem := apperrors.ToProblem(err, i18n.MatchLocale(r.Header.Get("Accept-Language")))
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, problem)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.CodeInvalidArgument, "request body is required")
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("invalid request body: %v", err), err)
	}
	return nil
}

func intParam(value, field string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, apperrors.WithMetadata(apperrors.CodeInvalidArgument, fmt.Sprintf("%s must be a non-negative integer", field), map[string]string{"Field": field})
	}
	return n, nil
}

func durationParam(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "duration is invalid", map[string]string{"Field": "duration"})
	}
	return d, nil
}

// actor resolves the player a write acts for. Players act only as
// themselves; game masters may act for anyone.
func actor(r *http.Request, seasonID, requested string) (string, error) {
	claims, ok := gmauth.ClaimsFromContext(r.Context())
	if !ok {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	playerID := strings.TrimSpace(requested)
	if playerID == "" && claims.Role == gmauth.RolePlayer {
		playerID = claims.Subject
	}
	if !claims.CanAct(seasonID, playerID) {
		return "", apperrors.New(apperrors.CodePermissionDenied, "token cannot act for this player")
	}
	return playerID, nil
}

func gmID(r *http.Request) string {
	claims, _ := gmauth.ClaimsFromContext(r.Context())
	return claims.Subject
}
