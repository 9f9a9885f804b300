// Package orchestrator drives a season through its daily phases.
//
// Every phase is one Step: the season row is re-read inside a transaction,
// the phase handler writes its results, the season advances to the next
// phase, and the step's audit events are appended before the transaction
// commits. A crash at any point leaves either the whole step or none of it,
// so a restarted Runner simply re-executes the stored NextPhase.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/notify"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/outlast/internal/services/season/orchestrator"

// handler executes one phase and returns the phase that follows it.
type handler func(ctx context.Context, st *step) (season.Phase, error)

// Orchestrator executes season steps against a persistence gateway.
type Orchestrator struct {
	store    storage.Gateway
	source   fairness.Source
	notifier notify.Notifier
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	handlers map[season.Phase]handler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSource overrides the seed source used when challenges lock.
func WithSource(src fairness.Source) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.source = src
		}
	}
}

// WithNotifier sets where committed steps are announced.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTracer overrides the tracer used for step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// New builds an orchestrator over store.
func New(store storage.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		source:   fairness.CryptoSource{},
		notifier: notify.Nop{},
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.handlers = o.phaseHandlers()
	return o
}

// Store returns the gateway the orchestrator writes through.
func (o *Orchestrator) Store() storage.Gateway {
	return o.store
}

// Now returns the orchestrator clock reading in UTC.
func (o *Orchestrator) Now() time.Time {
	return o.now().UTC()
}

// StepResult describes one Step call.
type StepResult struct {
	Season season.Season
	// Ran is false when the season was not due and nothing was written.
	Ran bool
	// Phase is the phase that executed.
	Phase  season.Phase
	Events []event.Event
}

// Step executes the season's next phase if its deadline has passed.
//
// The season row is re-read inside the transaction, so a step that raced a
// concurrent writer or an operator signal either sees the new row or fails
// the version check and is retried by the caller.
func (o *Orchestrator) Step(ctx context.Context, seasonID string) (StepResult, error) {
	now := o.Now()
	var result StepResult
	err := o.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		result = StepResult{Season: sn}
		if !sn.Due(now) {
			return nil
		}

		phase := sn.NextPhase
		h, ok := o.handlers[phase]
		if !ok {
			return apperrors.Permanent(fmt.Errorf("no handler for phase %q", phase))
		}

		ctx, span := o.tracer.Start(ctx, "season.step/"+string(phase), trace.WithAttributes(
			attribute.String("season.id", sn.ID),
			attribute.Int("season.day", sn.DayIndex),
			attribute.String("season.phase", string(phase)),
		))
		defer span.End()

		st := &step{
			tx:     tx,
			season: sn,
			phase:  phase,
			now:    now,
			source: o.source,
			logger: o.logger.With().Str("season_id", sn.ID).Int("day", sn.DayIndex).Str("phase", string(phase)).Logger(),
		}
		next, err := h(ctx, st)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return err
		}

		deadline := now
		if !st.immediate {
			deadline = now.Add(st.season.Config.Duration(season.WindowAfter(phase)))
		}
		stored, err := tx.UpdateSeason(ctx, st.season.Advance(phase, next, deadline, now))
		if err != nil {
			return err
		}
		events, err := appendEvents(ctx, tx, st.events)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("season.next_phase", string(next)), attribute.Int("season.events", len(events)))
		result = StepResult{Season: stored, Ran: true, Phase: phase, Events: events}
		return nil
	})
	if err != nil {
		return StepResult{}, err
	}
	if result.Ran {
		o.publish(ctx, result.Events)
		o.publishPhase(ctx, result.Phase, result.Season)
		o.logger.Info().
			Str("season_id", seasonID).
			Str("phase", string(result.Phase)).
			Str("next_phase", string(result.Season.NextPhase)).
			Time("deadline", result.Season.PhaseDeadline).
			Msg("season step applied")
	}
	return result, nil
}

// Stall marks the season stalled after phase failed for good. Integrity
// failures also raise an incident event. Seasons that are no longer
// running are returned unchanged.
func (o *Orchestrator) Stall(ctx context.Context, seasonID string, phase season.Phase, cause error) (season.Season, error) {
	now := o.Now()
	var (
		stored season.Season
		events []event.Event
	)
	err := o.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		stored = sn
		if sn.Terminal() || sn.RunState != season.RunRunning {
			return nil
		}
		reason := "unknown error"
		if cause != nil {
			reason = cause.Error()
		}
		payload := failurePayload{Phase: phase, Code: apperrors.CodeOf(cause), Error: reason}
		pending := make([]event.Event, 0, 2)
		stalled, err := event.New(sn.ID, sn.DayIndex, event.KindSeasonStalled, string(phase), payload)
		if err != nil {
			return err
		}
		pending = append(pending, stalled)
		if apperrors.IsCategory(cause, apperrors.CategoryIntegrity) {
			incident, err := event.New(sn.ID, sn.DayIndex, event.KindIntegrityIncident, string(phase), payload)
			if err != nil {
				return err
			}
			pending = append(pending, incident)
		}
		stored, err = tx.UpdateSeason(ctx, sn.Stall(phase, reason, now))
		if err != nil {
			return err
		}
		events, err = appendEvents(ctx, tx, pending)
		return err
	})
	if err != nil {
		return season.Season{}, err
	}
	o.publish(ctx, events)
	return stored, nil
}

// Publish announces already committed events.
func (o *Orchestrator) Publish(ctx context.Context, events []event.Event) {
	o.publish(ctx, events)
}

type failurePayload struct {
	Phase season.Phase   `json:"phase"`
	Code  apperrors.Code `json:"code"`
	Error string         `json:"error"`
}

type phasePayload struct {
	NextPhase season.Phase  `json:"next_phase,omitempty"`
	Deadline  time.Time     `json:"deadline"`
	Status    season.Status `json:"status"`
}

func appendEvents(ctx context.Context, tx storage.EventStore, pending []event.Event) ([]event.Event, error) {
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

func (o *Orchestrator) publish(ctx context.Context, events []event.Event) {
	for _, evt := range events {
		o.notifier.Notify(ctx, notify.FromEvent(evt))
	}
}

func (o *Orchestrator) publishPhase(ctx context.Context, done season.Phase, sn season.Season) {
	payload, err := json.Marshal(phasePayload{NextPhase: sn.NextPhase, Deadline: sn.PhaseDeadline, Status: sn.Status})
	if err != nil {
		o.logger.Warn().Err(err).Msg("encode phase notice")
		return
	}
	o.notifier.Notify(ctx, notify.Notice{
		SeasonID: sn.ID,
		Day:      sn.DayIndex,
		Kind:     notify.KindPhase,
		Phase:    string(done),
		Payload:  payload,
		At:       sn.UpdatedAt,
	})
}

func (o *Orchestrator) phaseHandlers() map[season.Phase]handler {
	return map[season.Phase]handler{
		season.PhaseDayStart:            o.dayStart,
		season.PhaseMedicalCheck:        o.medicalCheck,
		season.PhaseCampOpen:            o.campOpen,
		season.PhaseCampClose:           o.campClose,
		season.PhaseChallengeOpen:       o.challengeOpen,
		season.PhaseChallengeLocked:     o.lockPhase(challengeRound(season.PhaseChallengeLocked)),
		season.PhaseChallengeScored:     o.challengeScored,
		season.PhaseVoteOpen:            o.voteOpen,
		season.PhaseVoteClose:           o.voteClose,
		season.PhaseVoteTallied:         o.voteTallied,
		season.PhaseRevoteOpen:          o.revoteOpen,
		season.PhaseRevoteClose:         o.voteClose,
		season.PhaseRevoteTallied:       o.revoteTallied,
		season.PhaseTiebreakOpen:        o.tiebreakOpen,
		season.PhaseTiebreakLocked:      o.lockPhase(challengeRound(season.PhaseTiebreakLocked)),
		season.PhaseTiebreakScored:      o.tiebreakScored,
		season.PhaseMergeCheck:          o.mergeCheck,
		season.PhaseFinaleCheck:         o.finaleCheck,
		season.PhaseDayEnd:              o.dayEnd,
		season.PhaseFinaleStart:         o.finaleStart,
		season.PhaseFinalImmunityOpen:   o.finalImmunityOpen,
		season.PhaseFinalImmunityLocked: o.lockPhase(challengeRound(season.PhaseFinalImmunityLocked)),
		season.PhaseFinalImmunityScored: o.finalImmunityScored,
		season.PhaseFinalistSelection:   o.finalistSelection,
		season.PhaseFinalDuelOpen:       o.finalDuelOpen,
		season.PhaseFinalDuelLocked:     o.lockPhase(challengeRound(season.PhaseFinalDuelLocked)),
		season.PhaseFinalDuelScored:     o.finalDuelScored,
		season.PhaseJuryVoteOpen:        o.juryVoteOpen,
		season.PhaseJuryVoteClose:       o.voteClose,
		season.PhaseJuryVoteTallied:     o.juryVoteTallied,
		season.PhaseJuryTiebreakOpen:    o.juryTiebreakOpen,
		season.PhaseJuryTiebreakLocked:  o.lockPhase(challengeRound(season.PhaseJuryTiebreakLocked)),
		season.PhaseJuryTiebreakScored:  o.juryTiebreakScored,
	}
}
