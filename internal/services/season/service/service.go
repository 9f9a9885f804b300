// Package service implements the inbound season operations used by the HTTP
// and gRPC surfaces: season lifecycle, player actions, GM control, and audit
// reads. Every write validates the season phase synchronously and records its
// audit events in the same transaction as the state change.
package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/platform/id"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/orchestrator"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/rs/zerolog"
)

// Waker reaches the runner supervising a season.
type Waker interface {
	Ensure(seasonID string)
	Wake(seasonID string)
}

type nopWaker struct{}

func (nopWaker) Ensure(string) {}
func (nopWaker) Wake(string)   {}

// Service exposes the inbound operations.
type Service struct {
	orch     *orchestrator.Orchestrator
	store    storage.Gateway
	waker    Waker
	logger   zerolog.Logger
	newID    func() (string, error)
	defaults season.Config
}

// Option configures a Service.
type Option func(*Service)

// WithWaker wires the runner supervisor woken after control signals.
func WithWaker(w Waker) Option {
	return func(s *Service) {
		if w != nil {
			s.waker = w
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "season_service").Logger()
	}
}

// WithIDGenerator overrides season id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithSeasonDefaults sets the rules applied to fields a new season leaves
// unset.
func WithSeasonDefaults(cfg season.Config) Option {
	return func(s *Service) {
		s.defaults = cfg.WithDefaults()
	}
}

// New builds the service on top of orch and its store.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Service {
	s := &Service{
		orch:     orch,
		store:    orch.Store(),
		waker:    nopWaker{},
		logger:   zerolog.Nop(),
		newID:    id.NewID,
		defaults: season.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSeasonInput describes a new planned season.
type CreateSeasonInput struct {
	ID      string
	Name    string
	Config  season.Config
	Players []roster.Player
	ActorID string
}

type seasonCreatedPayload struct {
	Name    string        `json:"name"`
	Players []string      `json:"players"`
	Tribes  []string      `json:"tribes"`
	Config  season.Config `json:"config"`
}

// CreateSeason stores a planned season and its starting roster.
func (s *Service) CreateSeason(ctx context.Context, in CreateSeasonInput) (season.Season, error) {
	seasonID := strings.TrimSpace(in.ID)
	if seasonID == "" {
		generated, err := s.newID()
		if err != nil {
			return season.Season{}, err
		}
		seasonID = generated
	}
	players := make([]roster.Player, len(in.Players))
	for i, p := range in.Players {
		p = roster.Normalize(p)
		p.SeasonID = seasonID
		players[i] = p
	}
	if err := roster.Validate(players); err != nil {
		return season.Season{}, err
	}
	sn, err := season.New(seasonID, strings.TrimSpace(in.Name), in.Config.WithDefaultsFrom(s.defaults), s.orch.Now())
	if err != nil {
		return season.Season{}, err
	}

	var stored []event.Event
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		if err := tx.CreateSeason(ctx, sn, players); err != nil {
			return err
		}
		evt, err := event.New(sn.ID, 0, event.KindSeasonCreated, sn.ID, seasonCreatedPayload{
			Name:    sn.Name,
			Players: roster.IDs(players),
			Tribes:  roster.Tribes(players),
			Config:  sn.Config,
		})
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorGM, in.ActorID))
		return err
	})
	if err != nil {
		return season.Season{}, err
	}
	s.orch.Publish(ctx, stored)
	s.logger.Info().Str("season_id", sn.ID).Int("players", len(players)).Msg("season created")
	return sn, nil
}

// StartSeason moves a planned season to day one and launches its runner.
func (s *Service) StartSeason(ctx context.Context, seasonID, actorID string) (season.Season, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return season.Season{}, err
	}
	var (
		updated season.Season
		stored  []event.Event
	)
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		started, err := sn.Start(s.orch.Now())
		if err != nil {
			return err
		}
		updated, err = tx.UpdateSeason(ctx, started)
		if err != nil {
			return err
		}
		evt, err := event.New(updated.ID, updated.DayIndex, event.KindSeasonStarted, updated.ID, nil)
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorGM, actorID))
		return err
	})
	if err != nil {
		return season.Season{}, err
	}
	s.orch.Publish(ctx, stored)
	s.waker.Ensure(updated.ID)
	s.logger.Info().Str("season_id", updated.ID).Msg("season started")
	return updated, nil
}

// GetSeason returns the season row.
func (s *Service) GetSeason(ctx context.Context, seasonID string) (season.Season, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return season.Season{}, err
	}
	return s.store.GetSeason(ctx, seasonID)
}

// ListSeasons returns seasons, optionally filtered by status.
func (s *Service) ListSeasons(ctx context.Context, statuses ...season.Status) ([]season.Season, error) {
	return s.store.ListSeasons(ctx, statuses...)
}

// ListPlayers returns the season roster.
func (s *Service) ListPlayers(ctx context.Context, seasonID string) ([]roster.Player, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPlayers(ctx, seasonID)
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument, fmt.Sprintf("%s is required", field), map[string]string{"Field": field})
	}
	return value, nil
}

func appendAll(ctx context.Context, tx storage.EventStore, pending ...event.Event) ([]event.Event, error) {
	out := make([]event.Event, 0, len(pending))
	for _, evt := range pending {
		stored, err := tx.AppendEvent(ctx, evt)
		if err != nil {
			return nil, fmt.Errorf("append %s event: %w", evt.Kind, err)
		}
		out = append(out, stored)
	}
	return out, nil
}
