package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

// OpenVoteRound inserts a ballot box unless it exists.
func (s *Store) OpenVoteRound(ctx context.Context, r storage.VoteRound) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	eligibility, err := encodeJSON(r.Eligibility)
	if err != nil {
		return false, err
	}
	immune, err := encodeJSON(nonNil(r.Immune))
	if err != nil {
		return false, err
	}
	status := r.Status
	if status == "" {
		status = storage.VoteRoundOpen
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO vote_rounds (season_id, day, round, status, eligibility_json, immune_json, opened_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (season_id, day, round) DO NOTHING`,
		r.SeasonID, r.Day, string(r.Round), string(status), eligibility, immune, toMillis(r.OpenedAt),
	)
	if err != nil {
		return false, fmt.Errorf("open vote round: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("open vote round: %w", err)
	}
	return n > 0, nil
}

// GetVoteRound loads one ballot box.
func (s *Store) GetVoteRound(ctx context.Context, seasonID string, day int, round vote.Round) (storage.VoteRound, error) {
	if err := s.check(ctx); err != nil {
		return storage.VoteRound{}, err
	}
	var (
		r                   storage.VoteRound
		roundText, status   string
		eligibility, immune string
		result, juryResult  sql.NullString
		openedAt            int64
		closedAt, talliedAt sql.NullInt64
	)
	err := s.q.QueryRowContext(ctx, `
SELECT season_id, day, round, status, eligibility_json, immune_json, result_json, jury_result_json,
	opened_at, closed_at, tallied_at
FROM vote_rounds WHERE season_id = ? AND day = ? AND round = ?`,
		seasonID, day, string(round),
	).Scan(&r.SeasonID, &r.Day, &roundText, &status, &eligibility, &immune, &result, &juryResult,
		&openedAt, &closedAt, &talliedAt)
	if notFound(err) {
		return storage.VoteRound{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.VoteRound{}, fmt.Errorf("get vote round: %w", err)
	}
	r.Round = vote.Round(roundText)
	r.Status = storage.VoteRoundStatus(status)
	r.OpenedAt = fromMillis(openedAt)
	r.ClosedAt = fromNullMillis(closedAt)
	r.TalliedAt = fromNullMillis(talliedAt)
	if err := decodeJSON(eligibility, &r.Eligibility); err != nil {
		return storage.VoteRound{}, err
	}
	if err := decodeJSON(immune, &r.Immune); err != nil {
		return storage.VoteRound{}, err
	}
	if len(r.Immune) == 0 {
		r.Immune = nil
	}
	if result.Valid {
		r.Result = &vote.Result{}
		if err := decodeJSON(result.String, r.Result); err != nil {
			return storage.VoteRound{}, err
		}
	}
	if juryResult.Valid {
		r.JuryResult = &vote.JuryResult{}
		if err := decodeJSON(juryResult.String, r.JuryResult); err != nil {
			return storage.VoteRound{}, err
		}
	}
	return r, nil
}

// UpdateVoteRound stores the status, results and timestamps of a ballot box.
func (s *Store) UpdateVoteRound(ctx context.Context, r storage.VoteRound) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	result, err := nullJSON(r.Result != nil, r.Result)
	if err != nil {
		return err
	}
	juryResult, err := nullJSON(r.JuryResult != nil, r.JuryResult)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE vote_rounds SET status = ?, result_json = ?, jury_result_json = ?, closed_at = ?, tallied_at = ?
WHERE season_id = ? AND day = ? AND round = ?`,
		string(r.Status), result, juryResult, toNullMillis(r.ClosedAt), toNullMillis(r.TalliedAt),
		r.SeasonID, r.Day, string(r.Round),
	)
	if err != nil {
		return fmt.Errorf("update vote round: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutVote stores a ballot. A later ballot from the same voter replaces the
// earlier one.
func (s *Store) PutVote(ctx context.Context, v vote.Vote) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO votes (season_id, day, round, voter_id, target_id, idol_played, cast_at)
VALUES (?, ?, ?, ?, ?, 0, ?)
ON CONFLICT (season_id, day, round, voter_id) DO UPDATE SET
	target_id = excluded.target_id,
	idol_played = 0,
	cast_at = excluded.cast_at`,
		v.SeasonID, v.Day, string(v.Round), v.VoterID, v.TargetID, toMillis(v.CastAt),
	)
	if err != nil {
		return fmt.Errorf("put vote: %w", err)
	}
	return nil
}

// ListVotes lists a round's ballots in cast order.
func (s *Store) ListVotes(ctx context.Context, seasonID string, day int, round vote.Round) ([]vote.Vote, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT season_id, day, round, voter_id, target_id, idol_played, cast_at, revealed_at
FROM votes WHERE season_id = ? AND day = ? AND round = ? ORDER BY cast_at, voter_id`,
		seasonID, day, string(round))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []vote.Vote
	for rows.Next() {
		var (
			v          vote.Vote
			roundText  string
			idolPlayed int
			castAt     int64
			revealedAt sql.NullInt64
		)
		if err := rows.Scan(&v.SeasonID, &v.Day, &roundText, &v.VoterID, &v.TargetID, &idolPlayed, &castAt, &revealedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Round = vote.Round(roundText)
		v.IdolPlayed = idolPlayed != 0
		v.CastAt = fromMillis(castAt)
		v.RevealedAt = fromNullMillis(revealedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// NegateVotes flags every ballot cast against one of targets.
func (s *Store) NegateVotes(ctx context.Context, seasonID string, day int, round vote.Round, targets []string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	args := []any{seasonID, day, string(round)}
	for _, target := range targets {
		args = append(args, target)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(targets)), ", ")
	_, err := s.q.ExecContext(ctx, `
UPDATE votes SET idol_played = 1
WHERE season_id = ? AND day = ? AND round = ? AND target_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("negate votes: %w", err)
	}
	return nil
}

// RevealVotes stamps every unrevealed ballot in the round.
func (s *Store) RevealVotes(ctx context.Context, seasonID string, day int, round vote.Round, at time.Time) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
UPDATE votes SET revealed_at = ?
WHERE season_id = ? AND day = ? AND round = ? AND revealed_at IS NULL`,
		toMillis(at), seasonID, day, string(round))
	if err != nil {
		return fmt.Errorf("reveal votes: %w", err)
	}
	return nil
}

// RecordIdolPlay stores an idol play. Each holder plays at most once a round.
func (s *Store) RecordIdolPlay(ctx context.Context, play storage.IdolPlay) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO idol_plays (season_id, day, round, holder_id, played_at) VALUES (?, ?, ?, ?, ?)`,
		play.SeasonID, play.Day, string(play.Round), play.HolderID, toMillis(play.PlayedAt))
	if isUniqueViolation(err) {
		return apperrors.WithMetadata(apperrors.CodeIdolAlreadyPlayed, "idol already played",
			map[string]string{"HolderID": play.HolderID})
	}
	if err != nil {
		return fmt.Errorf("record idol play: %w", err)
	}
	return nil
}

// ListIdolPlays lists a round's idol plays in play order.
func (s *Store) ListIdolPlays(ctx context.Context, seasonID string, day int, round vote.Round) ([]storage.IdolPlay, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT season_id, day, round, holder_id, played_at
FROM idol_plays WHERE season_id = ? AND day = ? AND round = ? ORDER BY played_at, holder_id`,
		seasonID, day, string(round))
	if err != nil {
		return nil, fmt.Errorf("list idol plays: %w", err)
	}
	defer rows.Close()

	var out []storage.IdolPlay
	for rows.Next() {
		var (
			play      storage.IdolPlay
			roundText string
			playedAt  int64
		)
		if err := rows.Scan(&play.SeasonID, &play.Day, &roundText, &play.HolderID, &playedAt); err != nil {
			return nil, fmt.Errorf("scan idol play: %w", err)
		}
		play.Round = vote.Round(roundText)
		play.PlayedAt = fromMillis(playedAt)
		out = append(out, play)
	}
	return out, rows.Err()
}

// RecordElimination inserts rec unless its id already exists.
func (s *Store) RecordElimination(ctx context.Context, rec storage.EliminationRecord) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return false, fmt.Errorf("elimination id is required")
	}
	tallies := rec.Tallies
	if tallies == nil {
		tallies = map[string]int{}
	}
	raw, err := encodeJSON(tallies)
	if err != nil {
		return false, err
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO eliminations (id, season_id, day, source, eliminated, tie, tallies_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SeasonID, rec.Day, string(rec.Source), rec.Eliminated, boolInt(rec.Tie), raw, toMillis(rec.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("record elimination: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record elimination: %w", err)
	}
	return n > 0, nil
}

// ListEliminations lists a season's eliminations oldest first.
func (s *Store) ListEliminations(ctx context.Context, seasonID string) ([]storage.EliminationRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT id, season_id, day, source, eliminated, tie, tallies_json, created_at
FROM eliminations WHERE season_id = ? ORDER BY day, created_at, id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list eliminations: %w", err)
	}
	defer rows.Close()

	var out []storage.EliminationRecord
	for rows.Next() {
		var (
			rec       storage.EliminationRecord
			source    string
			tie       int
			tallies   string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SeasonID, &rec.Day, &source, &rec.Eliminated, &tie, &tallies, &createdAt); err != nil {
			return nil, fmt.Errorf("scan elimination: %w", err)
		}
		rec.Source = storage.EliminationSource(source)
		rec.Tie = tie != 0
		rec.CreatedAt = fromMillis(createdAt)
		if err := decodeJSON(tallies, &rec.Tallies); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullJSON(valid bool, v any) (sql.NullString, error) {
	if !valid {
		return sql.NullString{}, nil
	}
	raw, err := encodeJSON(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: raw, Valid: true}, nil
}
