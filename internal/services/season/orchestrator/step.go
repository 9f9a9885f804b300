package orchestrator

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/fairness"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/rs/zerolog"
)

// step is the working state of one phase execution. Handlers mutate season
// in place and queue events; Step persists both when the handler succeeds.
type step struct {
	tx     storage.Gateway
	season season.Season
	phase  season.Phase
	now    time.Time
	source fairness.Source
	logger zerolog.Logger
	events []event.Event
	// immediate makes the next phase due now instead of after its window.
	immediate bool
}

func (st *step) day() int {
	return st.season.DayIndex
}

func (st *step) cfg() season.Config {
	return st.season.Config
}

// emit queues a system event for the current day.
func (st *step) emit(kind event.Kind, entityID string, payload any) error {
	evt, err := event.New(st.season.ID, st.day(), kind, entityID, payload)
	if err != nil {
		return err
	}
	evt.Timestamp = st.now
	st.events = append(st.events, evt)
	return nil
}

// applied logs a write that a previous attempt already made.
func (st *step) applied(what, entityID string) {
	st.logger.Warn().
		Str("code", string(apperrors.CodeStepAlreadyApplied)).
		Str("entity_id", entityID).
		Msgf("%s already applied; skipping", what)
}

func (st *step) players(ctx context.Context) ([]roster.Player, error) {
	players, err := st.tx.ListPlayers(ctx, st.season.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

func (st *step) activePlayers(ctx context.Context) ([]roster.Player, error) {
	players, err := st.players(ctx)
	if err != nil {
		return nil, err
	}
	return roster.ActivePlayers(players), nil
}

// eliminationID keys an elimination decision so a retried step cannot record
// it twice.
func eliminationID(seasonID string, day int, source storage.EliminationSource, playerID string) string {
	id := fmt.Sprintf("%s/%d/%s", seasonID, day, source)
	if playerID != "" {
		id += "/" + playerID
	}
	return id
}

// recordElimination stores the decision for the day and source.
func (st *step) recordElimination(ctx context.Context, source storage.EliminationSource, eliminated string, tie bool, tallies map[string]int) error {
	keyed := ""
	if source == storage.SourceEvacuation || source == storage.SourceFinalDuel {
		keyed = eliminated
	}
	rec := storage.EliminationRecord{
		ID:         eliminationID(st.season.ID, st.day(), source, keyed),
		SeasonID:   st.season.ID,
		Day:        st.day(),
		Source:     source,
		Eliminated: eliminated,
		Tie:        tie,
		Tallies:    tallies,
		CreatedAt:  st.now,
	}
	inserted, err := st.tx.RecordElimination(ctx, rec)
	if err != nil {
		return fmt.Errorf("record elimination: %w", err)
	}
	if !inserted {
		st.applied("elimination record", rec.ID)
	}
	return nil
}

type eliminationPayload struct {
	Source storage.EliminationSource `json:"source"`
	Role   roster.Role               `json:"role"`
	Merged bool                      `json:"merged"`
}

// eliminate removes an active player from play. Players already out are
// left as they are.
func (st *step) eliminate(ctx context.Context, playerID string, source storage.EliminationSource) error {
	p, err := st.tx.GetPlayer(ctx, st.season.ID, playerID)
	if err != nil {
		return fmt.Errorf("get player %s: %w", playerID, err)
	}
	if !p.Active() {
		st.applied("elimination", playerID)
		return nil
	}
	out := p.Eliminate(st.day(), st.season.Merged, st.now)
	if err := st.tx.UpdatePlayer(ctx, out); err != nil {
		return fmt.Errorf("update player %s: %w", playerID, err)
	}
	return st.emit(event.KindPlayerEliminated, playerID, eliminationPayload{Source: source, Role: out.Role, Merged: st.season.Merged})
}

func activeSet(players []roster.Player) map[string]bool {
	set := make(map[string]bool, len(players))
	for _, p := range players {
		if p.Active() {
			set[p.ID] = true
		}
	}
	return set
}
