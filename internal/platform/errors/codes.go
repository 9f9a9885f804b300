// Package errors provides structured error handling with i18n support.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Integrity errors
	CodeCommitMismatch        Code = "COMMIT_MISMATCH"
	CodeRollVerification      Code = "ROLL_VERIFICATION_FAILED"
	CodeMalformedCommit       Code = "MALFORMED_COMMIT"
	CodeEventChainBroken      Code = "EVENT_CHAIN_BROKEN"
	CodeEventSignatureInvalid Code = "EVENT_SIGNATURE_INVALID"

	// State errors
	CodeSeasonNotActive      Code = "SEASON_NOT_ACTIVE"
	CodeSeasonNotPlanned     Code = "SEASON_NOT_PLANNED"
	CodeSeasonTerminal       Code = "SEASON_TERMINAL"
	CodeSeasonNotStalled     Code = "SEASON_NOT_STALLED"
	CodeSeasonNotPaused      Code = "SEASON_NOT_PAUSED"
	CodeSeasonPaused         Code = "SEASON_PAUSED"
	CodePhaseOutOfOrder      Code = "PHASE_OUT_OF_ORDER"
	CodeChallengeNotOpen     Code = "CHALLENGE_NOT_OPEN"
	CodeChallengeNotLocked   Code = "CHALLENGE_NOT_LOCKED"
	CodeChallengeNotReady    Code = "CHALLENGE_NOT_READY"
	CodeChallengeCommitted   Code = "CHALLENGE_ALREADY_COMMITTED"
	CodeVoteClosed           Code = "VOTE_CLOSED"
	CodeSelectionClosed      Code = "SELECTION_CLOSED"
	CodePlayerNotActive      Code = "PLAYER_NOT_ACTIVE"
	CodeDailyStateMissing    Code = "DAILY_STATE_MISSING"
	CodeVoterIneligible      Code = "VOTER_INELIGIBLE"
	CodeTargetIneligible     Code = "TARGET_INELIGIBLE"
	CodeNotEntrant           Code = "NOT_ENTRANT"
	CodeIdolAlreadyPlayed    Code = "IDOL_ALREADY_PLAYED"
	CodeChallengeUnscorable  Code = "CHALLENGE_UNSCORABLE"
	CodeCompanionIneligible  Code = "COMPANION_INELIGIBLE"
	CodeUnknownControlSignal Code = "UNKNOWN_CONTROL_SIGNAL"

	// Idempotency errors
	CodeChallengeAlreadyScored Code = "CHALLENGE_ALREADY_SCORED"
	CodeStepAlreadyApplied     Code = "STEP_ALREADY_APPLIED"

	// Validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeRosterInvalid   Code = "ROSTER_INVALID"

	// Transient errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeVersionConflict    Code = "VERSION_CONFLICT"

	// Access errors
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// Category groups codes by how callers must react to them.
type Category string

const (
	// CategoryIntegrity is never auto-corrected; it raises a reviewable incident.
	CategoryIntegrity Category = "integrity"
	// CategoryState is an action attempted outside its valid phase.
	CategoryState Category = "state"
	// CategoryTransient may succeed when retried.
	CategoryTransient Category = "transient"
	// CategoryIdempotency marks a repeated non-idempotent step.
	CategoryIdempotency Category = "idempotency"
	// CategoryValidation is malformed input.
	CategoryValidation Category = "validation"
	// CategoryNotFound is a missing resource.
	CategoryNotFound Category = "not_found"
	// CategoryAccess is a missing or insufficient credential.
	CategoryAccess Category = "access"
)

// Category reports the handling category of the code.
func (c Code) Category() Category {
	switch c {
	case CodeCommitMismatch,
		CodeRollVerification,
		CodeMalformedCommit,
		CodeEventChainBroken,
		CodeEventSignatureInvalid:
		return CategoryIntegrity

	case CodeSeasonNotActive,
		CodeSeasonNotPlanned,
		CodeSeasonTerminal,
		CodeSeasonNotStalled,
		CodeSeasonNotPaused,
		CodeSeasonPaused,
		CodePhaseOutOfOrder,
		CodeChallengeNotOpen,
		CodeChallengeNotLocked,
		CodeChallengeNotReady,
		CodeChallengeCommitted,
		CodeVoteClosed,
		CodeSelectionClosed,
		CodePlayerNotActive,
		CodeDailyStateMissing,
		CodeVoterIneligible,
		CodeTargetIneligible,
		CodeNotEntrant,
		CodeIdolAlreadyPlayed,
		CodeChallengeUnscorable,
		CodeCompanionIneligible:
		return CategoryState

	case CodeChallengeAlreadyScored,
		CodeStepAlreadyApplied:
		return CategoryIdempotency

	case CodeInvalidArgument,
		CodeRosterInvalid,
		CodeUnknownControlSignal:
		return CategoryValidation

	case CodeNotFound:
		return CategoryNotFound

	case CodeUnauthenticated,
		CodePermissionDenied:
		return CategoryAccess

	default:
		return CategoryTransient
	}
}

// Retryable reports whether a failure with this code may succeed on retry.
func (c Code) Retryable() bool {
	return c.Category() == CategoryTransient
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeUnauthenticated:
		return codes.Unauthenticated
	case CodePermissionDenied:
		return codes.PermissionDenied
	case CodeChallengeAlreadyScored, CodeStepAlreadyApplied, CodeChallengeCommitted, CodeIdolAlreadyPlayed:
		return codes.AlreadyExists
	case CodeVersionConflict:
		return codes.Aborted
	case CodeStorageUnavailable:
		return codes.Unavailable
	case CodeUnknown:
		return codes.Internal
	}

	switch c.Category() {
	case CategoryIntegrity:
		return codes.DataLoss
	case CategoryState:
		return codes.FailedPrecondition
	case CategoryValidation:
		return codes.InvalidArgument
	case CategoryNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.DataLoss:
		return http.StatusUnprocessableEntity
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
