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
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

// challengeRound maps a challenge phase to the round it drives.
func challengeRound(p season.Phase) challenge.Round {
	switch p {
	case season.PhaseTiebreakOpen, season.PhaseTiebreakLocked, season.PhaseTiebreakScored:
		return challenge.RoundTiebreak
	case season.PhaseFinalImmunityOpen, season.PhaseFinalImmunityLocked, season.PhaseFinalImmunityScored:
		return challenge.RoundFinalImmunity
	case season.PhaseFinalDuelOpen, season.PhaseFinalDuelLocked, season.PhaseFinalDuelScored:
		return challenge.RoundFinalDuel
	case season.PhaseJuryTiebreakOpen, season.PhaseJuryTiebreakLocked, season.PhaseJuryTiebreakScored:
		return challenge.RoundJuryTiebreak
	default:
		return challenge.RoundImmunity
	}
}

func challengeKey(st *step, round challenge.Round) challenge.Key {
	return challenge.Key{SeasonID: st.season.ID, Day: st.day(), Round: round}
}

type challengeOpenedPayload struct {
	Round    challenge.Round `json:"round"`
	Kind     challenge.Kind  `json:"kind"`
	Entrants []string        `json:"entrants"`
	Teams    []string        `json:"teams,omitempty"`
	Closes   time.Time       `json:"closes"`
}

// openChallenge creates the round's challenge for entrants unless a previous
// attempt already did.
func (o *Orchestrator) openChallenge(ctx context.Context, st *step, round challenge.Round, kind challenge.Kind, entrants []roster.Player) error {
	key := challengeKey(st, round)
	list := make([]challenge.Entrant, len(entrants))
	for i, p := range entrants {
		list[i] = challenge.Entrant{PlayerID: p.ID}
		if kind == challenge.KindTeam {
			list[i].Team = p.Tribe
		}
	}
	inst := challenge.New(key, kind, st.cfg().TeamTopN, list, st.now)
	created, err := st.tx.CreateChallenge(ctx, inst)
	if err != nil {
		return fmt.Errorf("create challenge %s: %w", key, err)
	}
	if !created {
		st.applied("challenge open", key.String())
		return nil
	}
	closes := st.now.Add(st.cfg().Duration(season.WindowCommit))
	return st.emit(event.KindChallengeOpened, key.EncounterID(), challengeOpenedPayload{
		Round:    round,
		Kind:     kind,
		Entrants: roster.IDs(entrants),
		Teams:    inst.Teams,
		Closes:   closes,
	})
}

type challengeLockedPayload struct {
	Round       challenge.Round `json:"round"`
	SeedCommit  string          `json:"seed_commit"`
	HouseSeeded []string        `json:"house_seeded,omitempty"`
}

// lockPhase builds the handler that closes commitments for round. The next
// phase is the round's scoring phase.
func (o *Orchestrator) lockPhase(round challenge.Round) handler {
	return func(ctx context.Context, st *step) (season.Phase, error) {
		key := challengeKey(st, round)
		inst, err := st.tx.GetChallenge(ctx, key)
		if err != nil {
			return "", fmt.Errorf("get challenge %s: %w", key, err)
		}
		if inst.Status == challenge.StatusOpen {
			locked, err := inst.Lock(st.source, st.now)
			if err != nil {
				return "", err
			}
			if err := st.tx.SaveChallenge(ctx, locked); err != nil {
				return "", fmt.Errorf("save challenge %s: %w", key, err)
			}
			var house []string
			for _, e := range locked.Entrants {
				if e.Source == challenge.SourceHouse {
					house = append(house, e.PlayerID)
				}
			}
			if err := st.emit(event.KindChallengeLocked, key.EncounterID(), challengeLockedPayload{
				Round:       round,
				SeedCommit:  locked.SeedCommit,
				HouseSeeded: house,
			}); err != nil {
				return "", err
			}
		} else {
			st.applied("challenge lock", key.String())
		}
		next, _ := season.Successor(st.phase)
		return next, nil
	}
}

type challengeScoredPayload struct {
	Round      challenge.Round   `json:"round"`
	ServerSeed string            `json:"server_seed"`
	SeedCommit string            `json:"seed_commit"`
	Results    challenge.Results `json:"results"`
}

// scoreChallenge forfeits silent entrants, verifies every seed, and scores
// the round. A round scored by an earlier attempt returns its stored results.
func (o *Orchestrator) scoreChallenge(ctx context.Context, st *step, round challenge.Round) (challenge.Results, error) {
	key := challengeKey(st, round)
	inst, err := st.tx.GetChallenge(ctx, key)
	if err != nil {
		return challenge.Results{}, fmt.Errorf("get challenge %s: %w", key, err)
	}
	if inst.Status == challenge.StatusScored && inst.Results != nil {
		st.applied("challenge score", key.String())
		return *inst.Results, nil
	}
	if inst.Status != challenge.StatusLocked {
		return challenge.Results{}, apperrors.New(apperrors.CodeChallengeNotLocked, fmt.Sprintf("challenge %s is %s", key, inst.Status))
	}

	inst, forfeits := inst.ForfeitUnrevealed()
	for _, playerID := range forfeits {
		if err := st.emit(event.KindChallengeForfeited, playerID, map[string]string{"encounter_id": key.EncounterID()}); err != nil {
			return challenge.Results{}, err
		}
	}
	mods, err := modifiers(ctx, st, inst)
	if err != nil {
		return challenge.Results{}, err
	}
	results, err := challenge.Score(inst, mods)
	if err != nil {
		return challenge.Results{}, err
	}
	if err := st.tx.SaveChallenge(ctx, inst.WithResults(results, st.now)); err != nil {
		return challenge.Results{}, fmt.Errorf("save challenge %s: %w", key, err)
	}
	if err := st.emit(event.KindChallengeScored, key.EncounterID(), challengeScoredPayload{
		Round:      round,
		ServerSeed: inst.ServerSeed,
		SeedCommit: inst.SeedCommit,
		Results:    results,
	}); err != nil {
		return challenge.Results{}, err
	}
	return results, nil
}

// modifiers collects each entrant's energy and bonuses for the day.
func modifiers(ctx context.Context, st *step, inst challenge.Instance) (map[string]challenge.Modifiers, error) {
	players, err := st.players(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]roster.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	states, err := st.tx.ListDailyStates(ctx, st.season.ID, st.day())
	if err != nil {
		return nil, fmt.Errorf("list daily states: %w", err)
	}
	// Finale days have no day_start; players compete on their last stats.
	if len(states) == 0 && st.day() > 1 {
		states, err = st.tx.ListDailyStates(ctx, st.season.ID, st.day()-1)
		if err != nil {
			return nil, fmt.Errorf("list daily states: %w", err)
		}
	}
	energy := make(map[string]int, len(states))
	for _, rec := range states {
		energy[rec.PlayerID] = rec.State.Energy
	}

	mods := make(map[string]challenge.Modifiers, len(inst.Entrants))
	for _, e := range inst.Entrants {
		p := byID[e.PlayerID]
		level, ok := energy[e.PlayerID]
		if !ok {
			st.logger.Warn().Str("player_id", e.PlayerID).Msg("no daily state; scoring at full energy")
			level = stats.Max
		}
		mods[e.PlayerID] = challenge.Modifiers{
			Energy:         level,
			ArchetypeBonus: p.Archetype.ChallengeBonus(),
			ItemBonus:      p.ItemBonus,
		}
	}
	return mods, nil
}

// scoredResults returns the stored results of a round that must be scored.
func scoredResults(ctx context.Context, st *step, round challenge.Round) (challenge.Results, error) {
	key := challengeKey(st, round)
	inst, err := st.tx.GetChallenge(ctx, key)
	if err != nil {
		return challenge.Results{}, fmt.Errorf("get challenge %s: %w", key, err)
	}
	if inst.Status != challenge.StatusScored || inst.Results == nil {
		return challenge.Results{}, apperrors.New(apperrors.CodeChallengeNotReady, fmt.Sprintf("challenge %s is %s", key, inst.Status))
	}
	return *inst.Results, nil
}

// challengeOpen starts the day's immunity challenge. Tribes compete as teams
// until the merge or until fewer than two tribes have members.
func (o *Orchestrator) challengeOpen(ctx context.Context, st *step) (season.Phase, error) {
	active, err := st.activePlayers(ctx)
	if err != nil {
		return "", err
	}
	kind := st.season.ChallengeKind()
	if kind == challenge.KindTeam && len(roster.Tribes(active)) < 2 {
		kind = challenge.KindIndividual
	}
	if err := o.openChallenge(ctx, st, challenge.RoundImmunity, kind, active); err != nil {
		return "", err
	}
	return season.PhaseChallengeLocked, nil
}

func (o *Orchestrator) challengeScored(ctx context.Context, st *step) (season.Phase, error) {
	if _, err := o.scoreChallenge(ctx, st, challenge.RoundImmunity); err != nil {
		return "", err
	}
	return season.PhaseVoteOpen, nil
}

// tiebreakOpen pits the tied targets of the main vote against each other.
func (o *Orchestrator) tiebreakOpen(ctx context.Context, st *step) (season.Phase, error) {
	main, err := tallied(ctx, st, mainRound)
	if err != nil {
		return "", err
	}
	players, err := st.players(ctx)
	if err != nil {
		return "", err
	}
	active := activeSet(players)
	var entrants []roster.Player
	for _, p := range players {
		if active[p.ID] && contains(main.Result.Tied, p.ID) {
			entrants = append(entrants, p)
		}
	}
	if len(entrants) < 2 {
		return "", apperrors.Permanent(apperrors.New(apperrors.CodeChallengeUnscorable, "tie-break needs at least two tied players"))
	}
	if err := o.openChallenge(ctx, st, challenge.RoundTiebreak, challenge.KindIndividual, entrants); err != nil {
		return "", err
	}
	return season.PhaseTiebreakLocked, nil
}

// tiebreakScored eliminates the lowest-ranked tie-break entrant.
func (o *Orchestrator) tiebreakScored(ctx context.Context, st *step) (season.Phase, error) {
	results, err := o.scoreChallenge(ctx, st, challenge.RoundTiebreak)
	if err != nil {
		return "", err
	}
	main, err := tallied(ctx, st, mainRound)
	if err != nil {
		return "", err
	}
	loser := results.Bottom()
	if err := st.eliminate(ctx, loser, storage.SourceTiebreak); err != nil {
		return "", err
	}
	if err := st.recordElimination(ctx, storage.SourceTiebreak, loser, true, main.Result.Tallies); err != nil {
		return "", err
	}
	return season.PhaseMergeCheck, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
