package season

import "github.com/louisbranch/outlast/internal/services/season/domain/vote"

var successors = map[Phase]Phase{
	PhaseDayStart:            PhaseMedicalCheck,
	PhaseCampOpen:            PhaseCampClose,
	PhaseCampClose:           PhaseChallengeOpen,
	PhaseChallengeOpen:       PhaseChallengeLocked,
	PhaseChallengeLocked:     PhaseChallengeScored,
	PhaseChallengeScored:     PhaseVoteOpen,
	PhaseVoteOpen:            PhaseVoteClose,
	PhaseVoteClose:           PhaseVoteTallied,
	PhaseRevoteOpen:          PhaseRevoteClose,
	PhaseRevoteClose:         PhaseRevoteTallied,
	PhaseRevoteTallied:       PhaseMergeCheck,
	PhaseTiebreakOpen:        PhaseTiebreakLocked,
	PhaseTiebreakLocked:      PhaseTiebreakScored,
	PhaseTiebreakScored:      PhaseMergeCheck,
	PhaseMergeCheck:          PhaseFinaleCheck,
	PhaseFinaleCheck:         PhaseDayEnd,
	PhaseFinalImmunityOpen:   PhaseFinalImmunityLocked,
	PhaseFinalImmunityLocked: PhaseFinalImmunityScored,
	PhaseFinalImmunityScored: PhaseFinalistSelection,
	PhaseFinalistSelection:   PhaseFinalDuelOpen,
	PhaseFinalDuelOpen:       PhaseFinalDuelLocked,
	PhaseFinalDuelLocked:     PhaseFinalDuelScored,
	PhaseFinalDuelScored:     PhaseJuryVoteOpen,
	PhaseJuryVoteOpen:        PhaseJuryVoteClose,
	PhaseJuryVoteClose:       PhaseJuryVoteTallied,
	PhaseJuryTiebreakOpen:    PhaseJuryTiebreakLocked,
	PhaseJuryTiebreakLocked:  PhaseJuryTiebreakScored,
	PhaseJuryTiebreakScored:  PhaseComplete,
}

// Successor returns the fixed follow-up of p. Phases whose follow-up depends
// on the game state report false.
func Successor(p Phase) (Phase, bool) {
	next, ok := successors[p]
	return next, ok
}

// AfterMedical skips the day's camp, challenge and vote once the finale
// threshold is reached.
func AfterMedical(active int, cfg Config) Phase {
	if active <= cfg.FinaleThreshold {
		return PhaseMergeCheck
	}
	return PhaseCampOpen
}

// AfterTally routes a main vote: a clean result or an empty ballot box ends
// the vote, a tie goes to a head-to-head challenge late in the game and to a
// revote otherwise.
func AfterTally(result vote.Result, active int, cfg Config) Phase {
	if !result.Tie {
		return PhaseMergeCheck
	}
	if active <= cfg.HeadToHeadThreshold {
		return PhaseTiebreakOpen
	}
	return PhaseRevoteOpen
}

// ShouldMerge reports whether tribes disband now. A season also merges once
// fewer than two tribes still have active players.
func ShouldMerge(merged bool, active, tribesWithPlayers int, cfg Config) bool {
	if merged {
		return false
	}
	return active <= cfg.MergeThreshold || tribesWithPlayers < 2
}

// FinaleDue reports whether the daily loop ends after day.
func FinaleDue(active, day int, cfg Config) bool {
	return active <= cfg.FinaleThreshold || day >= cfg.TotalDays
}

// AfterDayEnd picks the next day or the finale.
func AfterDayEnd(active, day int, cfg Config) Phase {
	if FinaleDue(active, day, cfg) {
		return PhaseFinaleStart
	}
	return PhaseDayStart
}

// AfterFinaleStart skips final immunity and the duel when no more than the
// finalist count remains.
func AfterFinaleStart(active int, cfg Config) Phase {
	if active <= cfg.Finalists {
		return PhaseJuryVoteOpen
	}
	return PhaseFinalImmunityOpen
}

// AfterJuryTally completes the season or breaks a jury tie.
func AfterJuryTally(result vote.JuryResult) Phase {
	if result.Winner != "" {
		return PhaseComplete
	}
	return PhaseJuryTiebreakOpen
}
