package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrVersionConflict indicates a compare-and-swap lost a race.
var ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "record changed concurrently")

// SeasonStore persists season rows and rosters.
type SeasonStore interface {
	CreateSeason(ctx context.Context, s season.Season, players []roster.Player) error
	GetSeason(ctx context.Context, id string) (season.Season, error)
	ListSeasons(ctx context.Context, statuses ...season.Status) ([]season.Season, error)
	// UpdateSeason writes s if the stored version still equals s.Version and
	// returns the row with its new version.
	UpdateSeason(ctx context.Context, s season.Season) (season.Season, error)
}

// PlayerStore persists roster entries.
type PlayerStore interface {
	ListPlayers(ctx context.Context, seasonID string) ([]roster.Player, error)
	GetPlayer(ctx context.Context, seasonID, playerID string) (roster.Player, error)
	UpdatePlayer(ctx context.Context, p roster.Player) error
}

// DailyStateRecord is one player's stats for one day.
type DailyStateRecord struct {
	SeasonID  string           `json:"season_id"`
	PlayerID  string           `json:"player_id"`
	Day       int              `json:"day"`
	State     stats.DailyState `json:"state"`
	Version   int64            `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DailyStateStore persists per-player daily stats.
type DailyStateStore interface {
	GetDailyState(ctx context.Context, seasonID, playerID string, day int) (DailyStateRecord, error)
	ListDailyStates(ctx context.Context, seasonID string, day int) ([]DailyStateRecord, error)
	// InsertDailyStateIfAbsent creates the row unless one exists for the
	// same player and day, reporting whether it inserted.
	InsertDailyStateIfAbsent(ctx context.Context, rec DailyStateRecord) (bool, error)
	// CompareAndSwapDailyState replaces the row if its version still equals
	// rec.Version and returns the stored row.
	CompareAndSwapDailyState(ctx context.Context, rec DailyStateRecord) (DailyStateRecord, error)
}

// ChallengeStore persists challenge instances and their entrants.
type ChallengeStore interface {
	// CreateChallenge inserts inst unless the key exists, reporting whether
	// it inserted.
	CreateChallenge(ctx context.Context, inst challenge.Instance) (bool, error)
	GetChallenge(ctx context.Context, key challenge.Key) (challenge.Instance, error)
	ListChallenges(ctx context.Context, seasonID string, day int) ([]challenge.Instance, error)
	// SaveChallenge replaces a stored instance. Scored instances are
	// immutable and rejected with CodeChallengeAlreadyScored.
	SaveChallenge(ctx context.Context, inst challenge.Instance) error
}

// VoteRoundStatus is the lifecycle of one ballot box.
type VoteRoundStatus string

const (
	VoteRoundOpen    VoteRoundStatus = "open"
	VoteRoundClosed  VoteRoundStatus = "closed"
	VoteRoundTallied VoteRoundStatus = "tallied"
)

// VoteRound is one ballot box for a day.
type VoteRound struct {
	SeasonID    string           `json:"season_id"`
	Day         int              `json:"day"`
	Round       vote.Round       `json:"round"`
	Status      VoteRoundStatus  `json:"status"`
	Eligibility vote.Eligibility `json:"eligibility"`
	// Immune lists players whose ballots against them are dropped.
	Immune     []string         `json:"immune,omitempty"`
	Result     *vote.Result     `json:"result,omitempty"`
	JuryResult *vote.JuryResult `json:"jury_result,omitempty"`
	OpenedAt   time.Time        `json:"opened_at"`
	ClosedAt   *time.Time       `json:"closed_at,omitempty"`
	TalliedAt  *time.Time       `json:"tallied_at,omitempty"`
}

// IdolPlay records a holder playing an idol in a round.
type IdolPlay struct {
	SeasonID string     `json:"season_id"`
	Day      int        `json:"day"`
	Round    vote.Round `json:"round"`
	HolderID string     `json:"holder_id"`
	PlayedAt time.Time  `json:"played_at"`
}

// VoteStore persists ballot boxes, ballots, and idol plays.
type VoteStore interface {
	// OpenVoteRound inserts r unless the round exists, reporting whether it
	// inserted.
	OpenVoteRound(ctx context.Context, r VoteRound) (bool, error)
	GetVoteRound(ctx context.Context, seasonID string, day int, round vote.Round) (VoteRound, error)
	UpdateVoteRound(ctx context.Context, r VoteRound) error
	// PutVote stores v, replacing the voter's earlier ballot in the round.
	PutVote(ctx context.Context, v vote.Vote) error
	ListVotes(ctx context.Context, seasonID string, day int, round vote.Round) ([]vote.Vote, error)
	// NegateVotes flags every ballot against the given targets.
	NegateVotes(ctx context.Context, seasonID string, day int, round vote.Round, targets []string) error
	RevealVotes(ctx context.Context, seasonID string, day int, round vote.Round, at time.Time) error
	// RecordIdolPlay fails with CodeIdolAlreadyPlayed on a repeat play.
	RecordIdolPlay(ctx context.Context, play IdolPlay) error
	ListIdolPlays(ctx context.Context, seasonID string, day int, round vote.Round) ([]IdolPlay, error)
}

// EliminationSource says which step removed a player.
type EliminationSource string

const (
	SourceVote       EliminationSource = "vote"
	SourceRevote     EliminationSource = "revote"
	SourceTiebreak   EliminationSource = "tiebreak"
	SourceEvacuation EliminationSource = "evacuation"
	SourceFinalDuel  EliminationSource = "final_duel"
)

// EliminationRecord is an append-only elimination decision. Eliminated is
// empty when a tie stayed unresolved.
type EliminationRecord struct {
	ID         string            `json:"id"`
	SeasonID   string            `json:"season_id"`
	Day        int               `json:"day"`
	Source     EliminationSource `json:"source"`
	Eliminated string            `json:"eliminated,omitempty"`
	Tie        bool              `json:"tie"`
	Tallies    map[string]int    `json:"tallies,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// EliminationStore persists elimination decisions.
type EliminationStore interface {
	// RecordElimination inserts rec unless its id exists, reporting whether
	// it inserted.
	RecordElimination(ctx context.Context, rec EliminationRecord) (bool, error)
	ListEliminations(ctx context.Context, seasonID string) ([]EliminationRecord, error)
}

// EventQuery selects audit events.
type EventQuery struct {
	SeasonID string
	AfterSeq uint64
	Limit    int
	// Filter is an AIP-160 expression over kind, day, actor_type, actor_id,
	// entity_id and ts.
	Filter string
}

// ChainReport is the result of walking a season's journal.
type ChainReport struct {
	SeasonID    string `json:"season_id"`
	Events      int    `json:"events"`
	Valid       bool   `json:"valid"`
	FirstBadSeq uint64 `json:"first_bad_seq,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// EventStore persists the signed audit journal.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	ListEvents(ctx context.Context, q EventQuery) ([]event.Event, error)
	CountEvents(ctx context.Context, seasonID string, day int) (int, error)
	VerifyChain(ctx context.Context, seasonID string) (ChainReport, error)
}

// AttemptRecord is one orchestrator step attempt.
type AttemptRecord struct {
	ID        int64        `json:"id"`
	SeasonID  string       `json:"season_id"`
	Day       int          `json:"day"`
	Phase     season.Phase `json:"phase"`
	Attempt   int          `json:"attempt"`
	Outcome   string       `json:"outcome"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AttemptStore persists step attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, seasonID string, limit int) ([]AttemptRecord, error)
}

// SummaryStore persists day summaries.
type SummaryStore interface {
	// PutDaySummary inserts the summary unless one exists for the day.
	PutDaySummary(ctx context.Context, summary season.DaySummary) (bool, error)
	ListDaySummaries(ctx context.Context, seasonID string) ([]season.DaySummary, error)
}

// Gateway is the full persistence contract.
type Gateway interface {
	SeasonStore
	PlayerStore
	DailyStateStore
	ChallengeStore
	VoteStore
	EliminationStore
	EventStore
	AttemptStore
	SummaryStore

	// Atomic runs fn in one transaction. fn must use the Gateway it receives.
	Atomic(ctx context.Context, fn func(tx Gateway) error) error
}
