package service

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// ListEvents pages through a season's audit log.
func (s *Service) ListEvents(ctx context.Context, q storage.EventQuery) ([]event.Event, error) {
	seasonID, err := requireID("season id", q.SeasonID)
	if err != nil {
		return nil, err
	}
	q.SeasonID = seasonID
	q.Limit = pageSize(q.Limit)
	q.Filter = strings.TrimSpace(q.Filter)
	return s.store.ListEvents(ctx, q)
}

// VerifyChain walks the season's audit log and checks every hash and
// signature.
func (s *Service) VerifyChain(ctx context.Context, seasonID string) (storage.ChainReport, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return storage.ChainReport{}, err
	}
	report, err := s.store.VerifyChain(ctx, seasonID)
	if err != nil {
		return storage.ChainReport{}, err
	}
	if !report.Valid {
		s.logger.Error().
			Str("season_id", seasonID).
			Uint64("first_bad_seq", report.FirstBadSeq).
			Str("reason", report.Reason).
			Msg("audit chain verification failed")
	}
	return report, nil
}

// ChallengeView returns the auditor view of one challenge. Seeds stay hidden
// until the challenge is scored.
func (s *Service) ChallengeView(ctx context.Context, key challenge.Key) (challenge.Instance, error) {
	seasonID, err := requireID("season id", key.SeasonID)
	if err != nil {
		return challenge.Instance{}, err
	}
	key.SeasonID = seasonID
	inst, err := s.store.GetChallenge(ctx, key)
	if err != nil {
		return challenge.Instance{}, err
	}
	return inst.Public(), nil
}

// ListChallenges returns the auditor view of every challenge on a day.
func (s *Service) ListChallenges(ctx context.Context, seasonID string, day int) ([]challenge.Instance, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListChallenges(ctx, seasonID, day)
	if err != nil {
		return nil, err
	}
	out := make([]challenge.Instance, len(list))
	for i, inst := range list {
		out[i] = inst.Public()
	}
	return out, nil
}

// VoteAudit is a ballot box with its ballots once they are public.
type VoteAudit struct {
	Round storage.VoteRound `json:"round"`
	Votes []vote.Vote       `json:"votes,omitempty"`
}

// VoteRound returns a ballot box. Ballots are included only after the tally.
func (s *Service) VoteRound(ctx context.Context, seasonID string, day int, round vote.Round) (VoteAudit, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return VoteAudit{}, err
	}
	if !round.Valid() {
		return VoteAudit{}, apperrors.New(apperrors.CodeInvalidArgument, "unknown vote round")
	}
	box, err := s.store.GetVoteRound(ctx, seasonID, day, round)
	if err != nil {
		return VoteAudit{}, err
	}
	out := VoteAudit{Round: box}
	if box.Status != storage.VoteRoundTallied {
		return out, nil
	}
	out.Votes, err = s.store.ListVotes(ctx, seasonID, day, round)
	if err != nil {
		return VoteAudit{}, err
	}
	return out, nil
}

// ListAttempts returns the most recent orchestrator step attempts.
func (s *Service) ListAttempts(ctx context.Context, seasonID string, limit int) ([]storage.AttemptRecord, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, seasonID, pageSize(limit))
}

// DaySummaries returns one summary per completed day.
func (s *Service) DaySummaries(ctx context.Context, seasonID string) ([]season.DaySummary, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return nil, err
	}
	return s.store.ListDaySummaries(ctx, seasonID)
}

// ListEliminations returns every elimination decision in order.
func (s *Service) ListEliminations(ctx context.Context, seasonID string) ([]storage.EliminationRecord, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return nil, err
	}
	return s.store.ListEliminations(ctx, seasonID)
}
