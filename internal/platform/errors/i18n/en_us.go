package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeCommitMismatch         = "COMMIT_MISMATCH"
	CodeRollVerification       = "ROLL_VERIFICATION_FAILED"
	CodeMalformedCommit        = "MALFORMED_COMMIT"
	CodeSeasonNotActive        = "SEASON_NOT_ACTIVE"
	CodeSeasonNotPlanned       = "SEASON_NOT_PLANNED"
	CodeSeasonTerminal         = "SEASON_TERMINAL"
	CodeSeasonPaused           = "SEASON_PAUSED"
	CodeChallengeNotOpen       = "CHALLENGE_NOT_OPEN"
	CodeChallengeNotLocked     = "CHALLENGE_NOT_LOCKED"
	CodeChallengeNotReady      = "CHALLENGE_NOT_READY"
	CodeChallengeCommitted     = "CHALLENGE_ALREADY_COMMITTED"
	CodeChallengeAlreadyScored = "CHALLENGE_ALREADY_SCORED"
	CodeVoteClosed             = "VOTE_CLOSED"
	CodeSelectionClosed        = "SELECTION_CLOSED"
	CodePlayerNotActive        = "PLAYER_NOT_ACTIVE"
	CodeVoterIneligible        = "VOTER_INELIGIBLE"
	CodeTargetIneligible       = "TARGET_INELIGIBLE"
	CodeNotEntrant             = "NOT_ENTRANT"
	CodeIdolAlreadyPlayed      = "IDOL_ALREADY_PLAYED"
	CodeCompanionIneligible    = "COMPANION_INELIGIBLE"
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeRosterInvalid          = "ROSTER_INVALID"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodePermissionDenied       = "PERMISSION_DENIED"
)

var enUSMessages = map[Code]string{
	CodeCommitMismatch:         "The revealed seed does not match its commitment.",
	CodeRollVerification:       "Roll verification failed for {{.SubjectID}}.",
	CodeMalformedCommit:        "A commitment must be a 64-character lowercase hex digest.",
	CodeSeasonNotActive:        "The season is not active.",
	CodeSeasonNotPlanned:       "The season has already started.",
	CodeSeasonTerminal:         "The season has ended.",
	CodeSeasonPaused:           "The season is paused.",
	CodeChallengeNotOpen:       "The challenge is not accepting commitments.",
	CodeChallengeNotLocked:     "Seeds can only be revealed after the challenge locks.",
	CodeChallengeNotReady:      "The challenge is not ready to be scored.",
	CodeChallengeCommitted:     "You have already committed to this challenge.",
	CodeChallengeAlreadyScored: "The challenge has already been scored.",
	CodeVoteClosed:             "Voting is closed.",
	CodeSelectionClosed:        "Finalist selection is closed.",
	CodePlayerNotActive:        "Player {{.PlayerID}} is no longer in the game.",
	CodeVoterIneligible:        "You cannot vote in this round.",
	CodeTargetIneligible:       "You cannot vote for {{.TargetID}} in this round.",
	CodeNotEntrant:             "You are not an entrant in this challenge.",
	CodeIdolAlreadyPlayed:      "An idol has already been played for {{.PlayerID}}.",
	CodeCompanionIneligible:    "{{.PlayerID}} cannot be selected.",
	CodeInvalidArgument:        "The request is invalid.",
	CodeRosterInvalid:          "The roster is invalid: {{.Reason}}.",
	CodeNotFound:               "Not found.",
	CodeUnauthenticated:        "Authentication is required.",
	CodePermissionDenied:       "You are not allowed to do that.",
}
