package season

// Phase names one orchestrator step. A season row stores the last completed
// phase and the next phase with its deadline.
type Phase string

// Daily phases.
const (
	PhaseNone            Phase = ""
	PhaseDayStart        Phase = "day_start"
	PhaseMedicalCheck    Phase = "medical_check"
	PhaseCampOpen        Phase = "camp_open"
	PhaseCampClose       Phase = "camp_close"
	PhaseChallengeOpen   Phase = "challenge_open"
	PhaseChallengeLocked Phase = "challenge_locked"
	PhaseChallengeScored Phase = "challenge_scored"
	PhaseVoteOpen        Phase = "vote_open"
	PhaseVoteClose       Phase = "vote_close"
	PhaseVoteTallied     Phase = "vote_tallied"
	PhaseRevoteOpen      Phase = "revote_open"
	PhaseRevoteClose     Phase = "revote_close"
	PhaseRevoteTallied   Phase = "revote_tallied"
	PhaseTiebreakOpen    Phase = "tiebreak_open"
	PhaseTiebreakLocked  Phase = "tiebreak_locked"
	PhaseTiebreakScored  Phase = "tiebreak_scored"
	PhaseMergeCheck      Phase = "merge_check"
	PhaseFinaleCheck     Phase = "finale_check"
	PhaseDayEnd          Phase = "day_end"
)

// Finale phases.
const (
	PhaseFinaleStart         Phase = "finale_start"
	PhaseFinalImmunityOpen   Phase = "final_immunity_open"
	PhaseFinalImmunityLocked Phase = "final_immunity_locked"
	PhaseFinalImmunityScored Phase = "final_immunity_scored"
	PhaseFinalistSelection   Phase = "finalist_selection"
	PhaseFinalDuelOpen       Phase = "final_duel_open"
	PhaseFinalDuelLocked     Phase = "final_duel_locked"
	PhaseFinalDuelScored     Phase = "final_duel_scored"
	PhaseJuryVoteOpen        Phase = "jury_vote_open"
	PhaseJuryVoteClose       Phase = "jury_vote_close"
	PhaseJuryVoteTallied     Phase = "jury_vote_tallied"
	PhaseJuryTiebreakOpen    Phase = "jury_tiebreak_open"
	PhaseJuryTiebreakLocked  Phase = "jury_tiebreak_locked"
	PhaseJuryTiebreakScored  Phase = "jury_tiebreak_scored"
	PhaseComplete            Phase = "complete"
)

var phaseOrder = []Phase{
	PhaseDayStart, PhaseMedicalCheck, PhaseCampOpen, PhaseCampClose,
	PhaseChallengeOpen, PhaseChallengeLocked, PhaseChallengeScored,
	PhaseVoteOpen, PhaseVoteClose, PhaseVoteTallied,
	PhaseRevoteOpen, PhaseRevoteClose, PhaseRevoteTallied,
	PhaseTiebreakOpen, PhaseTiebreakLocked, PhaseTiebreakScored,
	PhaseMergeCheck, PhaseFinaleCheck, PhaseDayEnd,
	PhaseFinaleStart, PhaseFinalImmunityOpen, PhaseFinalImmunityLocked, PhaseFinalImmunityScored,
	PhaseFinalistSelection, PhaseFinalDuelOpen, PhaseFinalDuelLocked, PhaseFinalDuelScored,
	PhaseJuryVoteOpen, PhaseJuryVoteClose, PhaseJuryVoteTallied,
	PhaseJuryTiebreakOpen, PhaseJuryTiebreakLocked, PhaseJuryTiebreakScored,
	PhaseComplete,
}

var phaseIndex = func() map[Phase]int {
	idx := make(map[Phase]int, len(phaseOrder))
	for i, p := range phaseOrder {
		idx[p] = i
	}
	return idx
}()

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseIndex[p]
	return ok
}

// Finale reports whether p belongs to the finale sequence.
func (p Phase) Finale() bool {
	i, ok := phaseIndex[p]
	return ok && i >= phaseIndex[PhaseFinaleStart]
}

// Phases returns every phase in execution order.
func Phases() []Phase {
	return append([]Phase(nil), phaseOrder...)
}

// Window names which configured duration a phase waits for after it runs.
type Window string

const (
	WindowNone      Window = ""
	WindowCamp      Window = "camp"
	WindowCommit    Window = "commit"
	WindowReveal    Window = "reveal"
	WindowVote      Window = "vote"
	WindowSelection Window = "selection"
)

// WindowAfter returns the wait that follows running p.
func WindowAfter(p Phase) Window {
	switch p {
	case PhaseCampOpen:
		return WindowCamp
	case PhaseChallengeOpen, PhaseTiebreakOpen, PhaseFinalImmunityOpen, PhaseFinalDuelOpen, PhaseJuryTiebreakOpen:
		return WindowCommit
	case PhaseChallengeLocked, PhaseTiebreakLocked, PhaseFinalImmunityLocked, PhaseFinalDuelLocked, PhaseJuryTiebreakLocked:
		return WindowReveal
	case PhaseVoteOpen, PhaseRevoteOpen, PhaseJuryVoteOpen:
		return WindowVote
	case PhaseFinalistSelection:
		return WindowSelection
	default:
		return WindowNone
	}
}
