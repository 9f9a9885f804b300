package orchestrator

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

type finaleStartedPayload struct {
	Finalists int      `json:"finalists"`
	Active    []string `json:"active"`
	Jurors    []string `json:"jurors"`
}

func (o *Orchestrator) finaleStart(ctx context.Context, st *step) (season.Phase, error) {
	players, err := st.players(ctx)
	if err != nil {
		return "", err
	}
	active := roster.ActivePlayers(players)
	if len(active) == 0 {
		return "", apperrors.Permanent(apperrors.New(apperrors.CodePlayerNotActive, "no active players remain for the finale"))
	}
	if err := st.emit(event.KindFinaleStarted, "", finaleStartedPayload{
		Finalists: st.cfg().Finalists,
		Active:    roster.IDs(active),
		Jurors:    roster.IDs(roster.Jurors(players)),
	}); err != nil {
		return "", err
	}
	return season.AfterFinaleStart(len(active), st.cfg()), nil
}

func (o *Orchestrator) finalImmunityOpen(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	if err := o.openChallenge(ctx, st, challenge.RoundFinalImmunity, challenge.KindIndividual, active); err != nil {
		return "", err
	}
	return season.PhaseFinalImmunityLocked, nil
}

func (o *Orchestrator) finalImmunityScored(ctx context.Context, st *step) (season.Phase, error) {
	if _, err := o.scoreChallenge(ctx, st, challenge.RoundFinalImmunity); err != nil {
		return "", err
	}
	return season.PhaseFinalistSelection, nil
}

type selectionPayload struct {
	Selector string    `json:"selector"`
	Closes   time.Time `json:"closes"`
}

// finalistSelection opens the window in which the final immunity winner
// picks a companion for the final.
func (o *Orchestrator) finalistSelection(ctx context.Context, st *step) (season.Phase, error) {
	results, err := scoredResults(ctx, st, challenge.RoundFinalImmunity)
	if err != nil {
		return "", err
	}
	if err := st.emit(event.KindSelectionOpened, results.Top(), selectionPayload{
		Selector: results.Top(),
		Closes:   st.now.Add(st.cfg().Duration(season.WindowSelection)),
	}); err != nil {
		return "", err
	}
	return season.PhaseFinalDuelOpen, nil
}

type companionPayload struct {
	Selector  string `json:"selector"`
	Companion string `json:"companion"`
	Default   bool   `json:"default"`
}

// DefaultCompanion is the best-ranked active entrant of the final immunity
// challenge other than its winner.
func DefaultCompanion(results challenge.Results, active map[string]bool) string {
	winner := results.Top()
	for _, id := range results.Ranked() {
		if id != winner && active[id] {
			return id
		}
	}
	return ""
}

// finalDuelOpen settles the companion and sends every other player into the
// final duel. When no duel seats are contested the season goes straight to
// the jury.
func (o *Orchestrator) finalDuelOpen(ctx context.Context, st *step) (season.Phase, error) {
	results, err := scoredResults(ctx, st, challenge.RoundFinalImmunity)
	if err != nil {
		return "", err
	}
	players, err := st.players(ctx)
	if err != nil {
		return "", err
	}
	active := activeSet(players)
	winner := results.Top()

	companion := st.season.Companion
	if companion == "" || companion == winner || !active[companion] {
		companion = DefaultCompanion(results, active)
		st.season.Companion = companion
		if err := st.emit(event.KindCompanionSelected, companion, companionPayload{
			Selector:  winner,
			Companion: companion,
			Default:   true,
		}); err != nil {
			return "", err
		}
	}

	var rest []roster.Player
	for _, p := range players {
		if active[p.ID] && p.ID != winner && p.ID != companion {
			rest = append(rest, p)
		}
	}
	seats := duelSeats(st.cfg())
	switch {
	case len(rest) <= seats:
		st.immediate = true
		return season.PhaseJuryVoteOpen, nil
	case seats == 0:
		for _, p := range rest {
			if err := st.eliminate(ctx, p.ID, storage.SourceFinalDuel); err != nil {
				return "", err
			}
			if err := st.recordElimination(ctx, storage.SourceFinalDuel, p.ID, false, nil); err != nil {
				return "", err
			}
		}
		st.immediate = true
		return season.PhaseJuryVoteOpen, nil
	}
	if err := o.openChallenge(ctx, st, challenge.RoundFinalDuel, challenge.KindIndividual, rest); err != nil {
		return "", err
	}
	return season.PhaseFinalDuelLocked, nil
}

// duelSeats is the number of finalist places decided by the final duel.
func duelSeats(cfg season.Config) int {
	if seats := cfg.Finalists - 2; seats > 0 {
		return seats
	}
	return 0
}

// finalDuelScored keeps the best duel entrants and sends the rest to the
// jury.
func (o *Orchestrator) finalDuelScored(ctx context.Context, st *step) (season.Phase, error) {
	results, err := o.scoreChallenge(ctx, st, challenge.RoundFinalDuel)
	if err != nil {
		return "", err
	}
	seats := duelSeats(st.cfg())
	for i, id := range results.Ranked() {
		if i < seats {
			continue
		}
		if err := st.eliminate(ctx, id, storage.SourceFinalDuel); err != nil {
			return "", err
		}
		if err := st.recordElimination(ctx, storage.SourceFinalDuel, id, false, nil); err != nil {
			return "", err
		}
	}
	return season.PhaseJuryVoteOpen, nil
}

type winnerPayload struct {
	Winner  string `json:"winner"`
	Decided string `json:"decided_by"`
}

func decideWinner(st *step, winner, decidedBy string) error {
	st.season.Winner = winner
	payload := winnerPayload{Winner: winner, Decided: decidedBy}
	if err := st.emit(event.KindWinnerDecided, winner, payload); err != nil {
		return err
	}
	return st.emit(event.KindSeasonCompleted, winner, payload)
}

// juryVoteOpen lets the jury choose among the finalists. A lone finalist
// wins outright.
func (o *Orchestrator) juryVoteOpen(ctx context.Context, st *step) (season.Phase, error) {
	players, err := st.players(ctx)
	if err != nil {
		return "", err
	}
	finalists := roster.IDs(roster.ActivePlayers(players))
	switch len(finalists) {
	case 0:
		return "", apperrors.Permanent(apperrors.New(apperrors.CodePlayerNotActive, "no finalists remain"))
	case 1:
		if err := decideWinner(st, finalists[0], "sole_finalist"); err != nil {
			return "", err
		}
		return season.PhaseComplete, nil
	}
	jurors := roster.IDs(roster.Jurors(players))
	if err := o.openVote(ctx, st, juryRound, vote.Eligibility{Voters: jurors, Targets: finalists}, nil); err != nil {
		return "", err
	}
	if len(jurors) == 0 {
		st.logger.Warn().Msg("jury is empty; closing jury vote immediately")
		st.immediate = true
	}
	return season.PhaseJuryVoteClose, nil
}

func (o *Orchestrator) juryVoteTallied(ctx context.Context, st *step) (season.Phase, error) {
	r, err := o.tally(ctx, st, juryRound)
	if err != nil {
		return "", err
	}
	if r.JuryResult == nil {
		return "", apperrors.New(apperrors.CodePhaseOutOfOrder, "jury vote has no result")
	}
	next := season.AfterJuryTally(*r.JuryResult)
	if next == season.PhaseComplete {
		if err := decideWinner(st, r.JuryResult.Winner, "jury"); err != nil {
			return "", err
		}
	}
	return next, nil
}

// juryTiebreakOpen sends the tied finalists, or every finalist when nobody
// received a vote, into a last challenge.
func (o *Orchestrator) juryTiebreakOpen(ctx context.Context, st *step) (season.Phase, error) {
	r, err := tallied(ctx, st, juryRound)
	if err != nil {
		return "", err
	}
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	var tied []string
	if r.JuryResult != nil {
		tied = r.JuryResult.Tied
	}
	var entrants []roster.Player
	for _, p := range active {
		if len(tied) == 0 || contains(tied, p.ID) {
			entrants = append(entrants, p)
		}
	}
	if len(entrants) < 2 {
		return "", apperrors.Permanent(apperrors.New(apperrors.CodeChallengeUnscorable, fmt.Sprintf("jury tie-break has %d entrants", len(entrants))))
	}
	if err := o.openChallenge(ctx, st, challenge.RoundJuryTiebreak, challenge.KindIndividual, entrants); err != nil {
		return "", err
	}
	return season.PhaseJuryTiebreakLocked, nil
}

func (o *Orchestrator) juryTiebreakScored(ctx context.Context, st *step) (season.Phase, error) {
	results, err := o.scoreChallenge(ctx, st, challenge.RoundJuryTiebreak)
	if err != nil {
		return "", err
	}
	if err := decideWinner(st, results.Top(), "jury_tiebreak"); err != nil {
		return "", err
	}
	return season.PhaseComplete, nil
}
