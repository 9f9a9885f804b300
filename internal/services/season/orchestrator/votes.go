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

const (
	mainRound   = vote.RoundMain
	revoteRound = vote.RoundRevote
	juryRound   = vote.RoundJury
)

// VoteRoundFor returns the ballot box that accepts votes while next is the
// pending phase.
func VoteRoundFor(next season.Phase) (vote.Round, bool) {
	switch next {
	case season.PhaseVoteClose:
		return mainRound, true
	case season.PhaseRevoteClose:
		return revoteRound, true
	case season.PhaseJuryVoteClose:
		return juryRound, true
	default:
		return "", false
	}
}

// closingRound maps a close or tally phase to its ballot box.
func closingRound(p season.Phase) vote.Round {
	switch p {
	case season.PhaseRevoteClose, season.PhaseRevoteTallied:
		return revoteRound
	case season.PhaseJuryVoteClose, season.PhaseJuryVoteTallied:
		return juryRound
	default:
		return mainRound
	}
}

type voteOpenedPayload struct {
	Round   vote.Round `json:"round"`
	Voters  []string   `json:"voters"`
	Targets []string   `json:"targets"`
	Immune  []string   `json:"immune,omitempty"`
	Closes  time.Time  `json:"closes"`
}

func (o *Orchestrator) openVote(ctx context.Context, st *step, round vote.Round, elig vote.Eligibility, immune []string) error {
	opened, err := st.tx.OpenVoteRound(ctx, storage.VoteRound{
		SeasonID:    st.season.ID,
		Day:         st.day(),
		Round:       round,
		Status:      storage.VoteRoundOpen,
		Eligibility: elig,
		Immune:      immune,
		OpenedAt:    st.now,
	})
	if err != nil {
		return fmt.Errorf("open %s vote: %w", round, err)
	}
	if !opened {
		st.applied("vote open", string(round))
		return nil
	}
	return st.emit(event.KindVoteOpened, string(round), voteOpenedPayload{
		Round:   round,
		Voters:  elig.Voters,
		Targets: elig.Targets,
		Immune:  immune,
		Closes:  st.now.Add(st.cfg().Duration(season.WindowVote)),
	})
}

type voteClosedPayload struct {
	Round       vote.Round `json:"round"`
	IdolsPlayed []string   `json:"idols_played,omitempty"`
	BallotsCast int        `json:"ballots_cast"`
}

// voteClose stops accepting ballots and negates every ballot against a
// player who played an idol in the round.
func (o *Orchestrator) voteClose(ctx context.Context, st *step) (season.Phase, error) {
	round := closingRound(st.phase)
	r, err := st.tx.GetVoteRound(ctx, st.season.ID, st.day(), round)
	if err != nil {
		return "", fmt.Errorf("get %s vote: %w", round, err)
	}
	if r.Status == storage.VoteRoundOpen {
		plays, err := st.tx.ListIdolPlays(ctx, st.season.ID, st.day(), round)
		if err != nil {
			return "", fmt.Errorf("list idol plays: %w", err)
		}
		holders := make([]string, 0, len(plays))
		for _, play := range plays {
			holders = append(holders, play.HolderID)
		}
		if len(holders) > 0 {
			if err := st.tx.NegateVotes(ctx, st.season.ID, st.day(), round, holders); err != nil {
				return "", fmt.Errorf("negate votes: %w", err)
			}
		}
		ballots, err := st.tx.ListVotes(ctx, st.season.ID, st.day(), round)
		if err != nil {
			return "", fmt.Errorf("list votes: %w", err)
		}
		closedAt := st.now
		r.Status = storage.VoteRoundClosed
		r.ClosedAt = &closedAt
		if err := st.tx.UpdateVoteRound(ctx, r); err != nil {
			return "", fmt.Errorf("close %s vote: %w", round, err)
		}
		if err := st.emit(event.KindVoteClosed, string(round), voteClosedPayload{
			Round:       round,
			IdolsPlayed: holders,
			BallotsCast: len(vote.Latest(ballots)),
		}); err != nil {
			return "", err
		}
	} else {
		st.applied("vote close", string(round))
	}
	next, _ := season.Successor(st.phase)
	return next, nil
}

type voteTalliedPayload struct {
	Round  vote.Round       `json:"round"`
	Result *vote.Result     `json:"result,omitempty"`
	Jury   *vote.JuryResult `json:"jury,omitempty"`
}

// tally counts a closed round and reveals its ballots. A round tallied by an
// earlier attempt is returned as stored.
func (o *Orchestrator) tally(ctx context.Context, st *step, round vote.Round) (storage.VoteRound, error) {
	r, err := st.tx.GetVoteRound(ctx, st.season.ID, st.day(), round)
	if err != nil {
		return storage.VoteRound{}, fmt.Errorf("get %s vote: %w", round, err)
	}
	if r.Status == storage.VoteRoundTallied {
		st.applied("vote tally", string(round))
		return r, nil
	}
	if r.Status != storage.VoteRoundClosed {
		return storage.VoteRound{}, apperrors.New(apperrors.CodePhaseOutOfOrder, fmt.Sprintf("%s vote is %s", round, r.Status))
	}
	ballots, err := st.tx.ListVotes(ctx, st.season.ID, st.day(), round)
	if err != nil {
		return storage.VoteRound{}, fmt.Errorf("list votes: %w", err)
	}
	latest := vote.Latest(ballots)

	payload := voteTalliedPayload{Round: round}
	if round == juryRound {
		jury := vote.TallyJury(latest)
		r.JuryResult = &jury
		payload.Jury = &jury
	} else {
		result := vote.Tally(latest, r.Immune)
		r.Result = &result
		payload.Result = &result
	}
	talliedAt := st.now
	r.Status = storage.VoteRoundTallied
	r.TalliedAt = &talliedAt
	if err := st.tx.UpdateVoteRound(ctx, r); err != nil {
		return storage.VoteRound{}, fmt.Errorf("tally %s vote: %w", round, err)
	}
	if err := st.tx.RevealVotes(ctx, st.season.ID, st.day(), round, st.now); err != nil {
		return storage.VoteRound{}, fmt.Errorf("reveal %s votes: %w", round, err)
	}
	if err := st.emit(event.KindVoteTallied, string(round), payload); err != nil {
		return storage.VoteRound{}, err
	}

	tie, tied := false, []string(nil)
	if r.Result != nil {
		tie, tied = r.Result.Tie, r.Result.Tied
	}
	if r.JuryResult != nil {
		tie, tied = r.JuryResult.Tie, r.JuryResult.Tied
	}
	if tie {
		if err := st.emit(event.KindVoteTied, string(round), map[string][]string{"tied": tied}); err != nil {
			return storage.VoteRound{}, err
		}
	}
	return r, nil
}

// tallied loads a round that an earlier phase must have tallied.
func tallied(ctx context.Context, st *step, round vote.Round) (storage.VoteRound, error) {
	r, err := st.tx.GetVoteRound(ctx, st.season.ID, st.day(), round)
	if err != nil {
		return storage.VoteRound{}, fmt.Errorf("get %s vote: %w", round, err)
	}
	if r.Status != storage.VoteRoundTallied || (r.Result == nil && r.JuryResult == nil) {
		return storage.VoteRound{}, apperrors.New(apperrors.CodePhaseOutOfOrder, fmt.Sprintf("%s vote is %s", round, r.Status))
	}
	if r.Result == nil {
		r.Result = &vote.Result{}
	}
	return r, nil
}

// voteOpen opens the main ballot. Every active player votes and may be
// targeted; ballots against the immunity winners are dropped at tally.
func (o *Orchestrator) voteOpen(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	results, err := scoredResults(ctx, st, challenge.RoundImmunity)
	if err != nil {
		return "", err
	}
	ids := roster.IDs(active)
	if err := o.openVote(ctx, st, mainRound, vote.Eligibility{Voters: ids, Targets: ids}, results.Immune); err != nil {
		return "", err
	}
	return season.PhaseVoteClose, nil
}

func (o *Orchestrator) voteTallied(ctx context.Context, st *step) (season.Phase, error) {
	r, err := o.tally(ctx, st, mainRound)
	if err != nil {
		return "", err
	}
	result := *r.Result
	if !result.Tie {
		if result.Eliminated != "" {
			if err := st.eliminate(ctx, result.Eliminated, storage.SourceVote); err != nil {
				return "", err
			}
		}
		if err := st.recordElimination(ctx, storage.SourceVote, result.Eliminated, false, result.Tallies); err != nil {
			return "", err
		}
	}
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	return season.AfterTally(result, len(active), st.cfg()), nil
}

// revoteOpen reopens voting restricted to the tied targets. Tied players
// may not vote.
func (o *Orchestrator) revoteOpen(ctx context.Context, st *step) (season.Phase, error) {
	main, err := tallied(ctx, st, mainRound)
	if err != nil {
		return "", err
	}
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	elig := vote.RevoteEligibility(roster.IDs(active), main.Result.Tied)
	if err := o.openVote(ctx, st, revoteRound, elig, nil); err != nil {
		return "", err
	}
	return season.PhaseRevoteClose, nil
}

// revoteTallied eliminates a clear revote loser. A second tie eliminates no
// one and is recorded as unresolved.
func (o *Orchestrator) revoteTallied(ctx context.Context, st *step) (season.Phase, error) {
	r, err := o.tally(ctx, st, revoteRound)
	if err != nil {
		return "", err
	}
	result := *r.Result
	if result.Eliminated != "" {
		if err := st.eliminate(ctx, result.Eliminated, storage.SourceRevote); err != nil {
			return "", err
		}
	} else {
		st.logger.Info().Strs("tied", result.Tied).Msg("revote unresolved; no elimination")
	}
	if err := st.recordElimination(ctx, storage.SourceRevote, result.Eliminated, result.Eliminated == "", result.Tallies); err != nil {
		return "", err
	}
	return season.PhaseMergeCheck, nil
}
