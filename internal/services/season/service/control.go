package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

// Signal is a GM control instruction.
type Signal string

const (
	SignalPause         Signal = "pause"
	SignalResume        Signal = "resume"
	SignalSkip          Signal = "skip"
	SignalExtend        Signal = "extend"
	SignalAbort         Signal = "abort"
	SignalResumeStalled Signal = "resume_stalled"
	SignalSideEvent     Signal = "side_event"
)

// Signals lists every accepted signal.
func Signals() []Signal {
	return []Signal{SignalPause, SignalResume, SignalSkip, SignalExtend, SignalAbort, SignalResumeStalled, SignalSideEvent}
}

// ParseSignal validates a signal name.
func ParseSignal(value string) (Signal, error) {
	sig := Signal(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Signals() {
		if sig == known {
			return sig, nil
		}
	}
	return "", apperrors.WithMetadata(apperrors.CodeUnknownControlSignal, fmt.Sprintf("unknown control signal %q", value), map[string]string{"Signal": value})
}

// ControlInput is one GM instruction for a season.
type ControlInput struct {
	SeasonID string
	Signal   Signal
	// Duration is the extension for SignalExtend.
	Duration time.Duration
	// Name labels a side event.
	Name    string
	Note    string
	ActorID string
}

type controlPayload struct {
	Signal    Signal          `json:"signal"`
	Phase     season.Phase    `json:"phase,omitempty"`
	Deadline  time.Time       `json:"deadline"`
	Extension string          `json:"extension,omitempty"`
	RunState  season.RunState `json:"run_state"`
	Name      string          `json:"name,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// Control applies a GM signal, records it in the audit log, and wakes the
// season's runner so it sees the change at once.
func (s *Service) Control(ctx context.Context, in ControlInput) (season.Season, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return season.Season{}, err
	}
	sig, err := ParseSignal(string(in.Signal))
	if err != nil {
		return season.Season{}, err
	}
	if sig == SignalSideEvent && strings.TrimSpace(in.Name) == "" {
		return season.Season{}, apperrors.New(apperrors.CodeInvalidArgument, "side event name is required")
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
		next, kind, err := applySignal(sn, sig, in.Duration, s.orch.Now())
		if err != nil {
			return err
		}
		if sig == SignalSideEvent {
			updated = sn
		} else {
			updated, err = tx.UpdateSeason(ctx, next)
			if err != nil {
				return err
			}
		}
		payload := controlPayload{
			Signal:   sig,
			Phase:    sn.NextPhase,
			Deadline: updated.PhaseDeadline,
			RunState: updated.RunState,
			Name:     strings.TrimSpace(in.Name),
			Note:     strings.TrimSpace(in.Note),
		}
		if sig == SignalExtend {
			payload.Extension = in.Duration.String()
		}
		entity := string(sn.NextPhase)
		if sig == SignalSideEvent {
			entity = payload.Name
		}
		evt, err := event.New(sn.ID, sn.DayIndex, kind, entity, payload)
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
	s.waker.Wake(updated.ID)
	s.logger.Info().
		Str("season_id", updated.ID).
		Str("signal", string(sig)).
		Str("actor_id", in.ActorID).
		Str("run_state", string(updated.RunState)).
		Msg("control signal applied")
	return updated, nil
}

func applySignal(sn season.Season, sig Signal, d time.Duration, now time.Time) (season.Season, event.Kind, error) {
	switch sig {
	case SignalPause:
		next, err := sn.Pause(now)
		return next, event.KindSeasonPaused, err
	case SignalResume:
		next, err := sn.Resume(now)
		return next, event.KindSeasonResumed, err
	case SignalSkip:
		next, err := sn.Skip(now)
		return next, event.KindPhaseSkipped, err
	case SignalExtend:
		next, err := sn.Extend(d, now)
		return next, event.KindPhaseExtended, err
	case SignalAbort:
		next, err := sn.Abort(now)
		return next, event.KindSeasonAborted, err
	case SignalResumeStalled:
		if err := sn.CheckLive(); err != nil {
			return sn, "", err
		}
		next, err := sn.ClearStall(now)
		return next, event.KindSeasonUnstalled, err
	case SignalSideEvent:
		return sn, event.KindSideEventTriggered, sn.CheckLive()
	default:
		return sn, "", apperrors.New(apperrors.CodeUnknownControlSignal, fmt.Sprintf("unknown control signal %q", sig))
	}
}
