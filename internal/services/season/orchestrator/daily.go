package orchestrator

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

type dayStartedPayload struct {
	Active  int `json:"active"`
	Created int `json:"created"`
}

// dayStart creates each active player's stats for the day. Day one starts
// full; later days decay from the previous day scaled by archetype.
func (o *Orchestrator) dayStart(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	created := 0
	for _, p := range active {
		state, err := startingState(ctx, st, p)
		if err != nil {
			return "", err
		}
		inserted, err := st.tx.InsertDailyStateIfAbsent(ctx, storage.DailyStateRecord{
			SeasonID:  st.season.ID,
			PlayerID:  p.ID,
			Day:       st.day(),
			State:     state,
			UpdatedAt: st.now,
		})
		if err != nil {
			return "", fmt.Errorf("insert daily state for %s: %w", p.ID, err)
		}
		if !inserted {
			st.applied("daily state", p.ID)
			continue
		}
		created++
		if err := st.emit(event.KindDailyStateCreated, p.ID, state); err != nil {
			return "", err
		}
	}
	if err := st.emit(event.KindDayStarted, "", dayStartedPayload{Active: len(active), Created: created}); err != nil {
		return "", err
	}
	return season.PhaseMedicalCheck, nil
}

func startingState(ctx context.Context, st *step, p roster.Player) (stats.DailyState, error) {
	if st.day() <= 1 {
		return stats.Full(), nil
	}
	prev, err := st.tx.GetDailyState(ctx, st.season.ID, p.ID, st.day()-1)
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		st.logger.Warn().Str("player_id", p.ID).Msg("no daily state for previous day; starting full")
		return stats.Full(), nil
	}
	if err != nil {
		return stats.DailyState{}, fmt.Errorf("get previous daily state for %s: %w", p.ID, err)
	}
	return stats.NextDay(prev.State, st.cfg().Decay, p.Archetype.DecayMultiplier()), nil
}

type medicalPayload struct {
	Vitals    int `json:"vitals"`
	Threshold int `json:"threshold"`
}

// medicalCheck evacuates every player whose vitals fell to the threshold.
func (o *Orchestrator) medicalCheck(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	threshold := st.cfg().MedicalThreshold
	remaining := len(active)
	for _, p := range active {
		rec, err := st.tx.GetDailyState(ctx, st.season.ID, p.ID, st.day())
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			st.logger.Warn().Str("player_id", p.ID).Msg("no daily state; skipping medical check")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("get daily state for %s: %w", p.ID, err)
		}
		if !rec.State.NeedsEvacuation(threshold) {
			continue
		}
		payload := medicalPayload{Vitals: rec.State.Vitals(), Threshold: threshold}
		if !rec.State.MedicalAlert {
			rec.State.MedicalAlert = true
			rec.UpdatedAt = st.now
			if _, err := st.tx.CompareAndSwapDailyState(ctx, rec); err != nil {
				return "", fmt.Errorf("flag medical alert for %s: %w", p.ID, err)
			}
			if err := st.emit(event.KindMedicalFlagged, p.ID, payload); err != nil {
				return "", err
			}
		}
		if err := st.tx.UpdatePlayer(ctx, p.Evacuate(st.day(), st.now)); err != nil {
			return "", fmt.Errorf("evacuate %s: %w", p.ID, err)
		}
		if err := st.recordElimination(ctx, storage.SourceEvacuation, p.ID, false, nil); err != nil {
			return "", err
		}
		if err := st.emit(event.KindPlayerEvacuated, p.ID, payload); err != nil {
			return "", err
		}
		remaining--
	}
	return season.AfterMedical(remaining, st.cfg()), nil
}

type windowPayload struct {
	Closes time.Time `json:"closes"`
}

func (o *Orchestrator) campOpen(_ context.Context, st *step) (season.Phase, error) {
	closes := st.now.Add(st.cfg().Duration(season.WindowCamp))
	if err := st.emit(event.KindCampOpened, "", windowPayload{Closes: closes}); err != nil {
		return "", err
	}
	return season.PhaseCampClose, nil
}

func (o *Orchestrator) campClose(_ context.Context, st *step) (season.Phase, error) {
	if err := st.emit(event.KindCampClosed, "", nil); err != nil {
		return "", err
	}
	return season.PhaseChallengeOpen, nil
}

type mergePayload struct {
	Active int      `json:"active"`
	Tribes []string `json:"tribes"`
}

// mergeCheck folds the tribes into one once few enough players remain or
// only one tribe still has members.
func (o *Orchestrator) mergeCheck(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	tribes := roster.Tribes(active)
	if season.ShouldMerge(st.season.Merged, len(active), len(tribes), st.cfg()) {
		st.season.Merged = true
		if err := st.emit(event.KindMergeTriggered, "", mergePayload{Active: len(active), Tribes: tribes}); err != nil {
			return "", err
		}
	}
	return season.PhaseFinaleCheck, nil
}

type finalePayload struct {
	Active int    `json:"active"`
	Reason string `json:"reason"`
}

func (o *Orchestrator) finaleCheck(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	if season.FinaleDue(len(active), st.day(), st.cfg()) {
		reason := "day_limit"
		if len(active) <= st.cfg().FinaleThreshold {
			reason = "threshold"
		}
		if err := st.emit(event.KindFinaleTriggered, "", finalePayload{Active: len(active), Reason: reason}); err != nil {
			return "", err
		}
	}
	return season.PhaseDayEnd, nil
}

// dayEnd writes the day summary and moves the season to the next day.
func (o *Orchestrator) dayEnd(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	stored, err := st.tx.CountEvents(ctx, st.season.ID, st.day())
	if err != nil {
		return "", fmt.Errorf("count events: %w", err)
	}
	records, err := st.tx.ListEliminations(ctx, st.season.ID)
	if err != nil {
		return "", fmt.Errorf("list eliminations: %w", err)
	}

	summary := season.DaySummary{
		SeasonID:    st.season.ID,
		Day:         st.day(),
		ActiveAtEnd: len(active),
		CreatedAt:   st.now,
	}
	// The day.ended event below counts toward its own day.
	summary.EventsEmitted = stored + len(st.events) + 1
	for _, rec := range records {
		if rec.Day != st.day() || rec.Eliminated == "" {
			continue
		}
		if rec.Source == storage.SourceEvacuation {
			summary.Evacuated = append(summary.Evacuated, rec.Eliminated)
			continue
		}
		summary.Eliminated = rec.Eliminated
	}

	inserted, err := st.tx.PutDaySummary(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("put day summary: %w", err)
	}
	if !inserted {
		st.applied("day summary", fmt.Sprintf("%s/%d", st.season.ID, st.day()))
	}
	if err := st.emit(event.KindDayEnded, "", summary); err != nil {
		return "", err
	}

	next := season.AfterDayEnd(len(active), st.day(), st.cfg())
	st.season.DayIndex++
	st.immediate = true
	return next, nil
}
