package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

// CreateChallenge inserts inst and its entrants unless the key exists.
func (s *Store) CreateChallenge(ctx context.Context, inst challenge.Instance) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	created := false
	err := s.Atomic(ctx, func(tx storage.Gateway) error {
		txs := tx.(*Store)
		teams, err := encodeJSON(nonNil(inst.Teams))
		if err != nil {
			return err
		}
		res, err := txs.q.ExecContext(ctx, `
INSERT INTO challenges (season_id, day, round, kind, top_n, teams_json, status, seed_commit, server_seed,
	results_json, opened_at, locked_at, scored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
ON CONFLICT (season_id, day, round) DO NOTHING`,
			inst.SeasonID, inst.Day, string(inst.Round), string(inst.Kind), inst.TopN, teams,
			string(inst.Status), inst.SeedCommit, inst.ServerSeed,
			toMillis(inst.OpenedAt), toNullMillis(inst.LockedAt), toNullMillis(inst.ScoredAt),
		)
		if err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		created = true
		return txs.writeEntrants(ctx, inst)
	})
	return created, err
}

// GetChallenge loads a challenge with its entrants in roster order.
func (s *Store) GetChallenge(ctx context.Context, key challenge.Key) (challenge.Instance, error) {
	if err := s.check(ctx); err != nil {
		return challenge.Instance{}, err
	}
	row := s.q.QueryRowContext(ctx, `
SELECT season_id, day, round, kind, top_n, teams_json, status, seed_commit, server_seed,
	results_json, opened_at, locked_at, scored_at
FROM challenges WHERE season_id = ? AND day = ? AND round = ?`,
		key.SeasonID, key.Day, string(key.Round))
	inst, err := scanChallenge(row)
	if notFound(err) {
		return challenge.Instance{}, storage.ErrNotFound
	}
	if err != nil {
		return challenge.Instance{}, fmt.Errorf("get challenge: %w", err)
	}
	entrants, err := s.listEntrants(ctx, key)
	if err != nil {
		return challenge.Instance{}, err
	}
	inst.Entrants = entrants
	return inst, nil
}

// ListChallenges lists a day's challenges in the order they opened.
func (s *Store) ListChallenges(ctx context.Context, seasonID string, day int) ([]challenge.Instance, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT round FROM challenges WHERE season_id = ? AND day = ? ORDER BY opened_at, round`, seasonID, day)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	var rounds []challenge.Round
	for rows.Next() {
		var round string
		if err := rows.Scan(&round); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		rounds = append(rounds, challenge.Round(round))
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]challenge.Instance, 0, len(rounds))
	for _, round := range rounds {
		inst, err := s.GetChallenge(ctx, challenge.Key{SeasonID: seasonID, Day: day, Round: round})
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// SaveChallenge replaces a stored challenge. A scored challenge never changes.
func (s *Store) SaveChallenge(ctx context.Context, inst challenge.Instance) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.Atomic(ctx, func(tx storage.Gateway) error {
		txs := tx.(*Store)
		var status string
		err := txs.q.QueryRowContext(ctx, `SELECT status FROM challenges WHERE season_id = ? AND day = ? AND round = ?`,
			inst.SeasonID, inst.Day, string(inst.Round)).Scan(&status)
		if notFound(err) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load challenge status: %w", err)
		}
		if challenge.Status(status) == challenge.StatusScored {
			return apperrors.New(apperrors.CodeChallengeAlreadyScored, fmt.Sprintf("challenge %s already scored", inst.Key))
		}

		var results sql.NullString
		if inst.Results != nil {
			raw, err := encodeJSON(inst.Results)
			if err != nil {
				return err
			}
			results = sql.NullString{String: raw, Valid: true}
		}
		if _, err := txs.q.ExecContext(ctx, `
UPDATE challenges SET status = ?, seed_commit = ?, server_seed = ?, results_json = ?, locked_at = ?, scored_at = ?
WHERE season_id = ? AND day = ? AND round = ?`,
			string(inst.Status), inst.SeedCommit, inst.ServerSeed, results,
			toNullMillis(inst.LockedAt), toNullMillis(inst.ScoredAt),
			inst.SeasonID, inst.Day, string(inst.Round),
		); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		return txs.writeEntrants(ctx, inst)
	})
}

func (s *Store) writeEntrants(ctx context.Context, inst challenge.Instance) error {
	for i, e := range inst.Entrants {
		_, err := s.q.ExecContext(ctx, `
INSERT INTO challenge_entrants (season_id, day, round, player_id, position, team, commit_order,
	client_seed_hash, client_seed, source, committed_at, revealed_at, forfeit)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (season_id, day, round, player_id) DO UPDATE SET
	commit_order = excluded.commit_order,
	client_seed_hash = excluded.client_seed_hash,
	client_seed = excluded.client_seed,
	source = excluded.source,
	committed_at = excluded.committed_at,
	revealed_at = excluded.revealed_at,
	forfeit = excluded.forfeit`,
			inst.SeasonID, inst.Day, string(inst.Round), e.PlayerID, i, e.Team, e.CommitOrder,
			e.ClientSeedHash, e.ClientSeed, string(e.Source),
			toNullMillis(e.CommittedAt), toNullMillis(e.RevealedAt), boolInt(e.Forfeit),
		)
		if err != nil {
			return fmt.Errorf("write entrant %s: %w", e.PlayerID, err)
		}
	}
	return nil
}

func (s *Store) listEntrants(ctx context.Context, key challenge.Key) ([]challenge.Entrant, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT player_id, team, commit_order, client_seed_hash, client_seed, source, committed_at, revealed_at, forfeit
FROM challenge_entrants WHERE season_id = ? AND day = ? AND round = ? ORDER BY position`,
		key.SeasonID, key.Day, string(key.Round))
	if err != nil {
		return nil, fmt.Errorf("list entrants: %w", err)
	}
	defer rows.Close()
	var out []challenge.Entrant
	for rows.Next() {
		var (
			e                       challenge.Entrant
			source                  string
			committedAt, revealedAt sql.NullInt64
			forfeit                 int
		)
		if err := rows.Scan(&e.PlayerID, &e.Team, &e.CommitOrder, &e.ClientSeedHash, &e.ClientSeed, &source,
			&committedAt, &revealedAt, &forfeit); err != nil {
			return nil, fmt.Errorf("scan entrant: %w", err)
		}
		e.Source = challenge.SeedSource(source)
		e.CommittedAt = fromNullMillis(committedAt)
		e.RevealedAt = fromNullMillis(revealedAt)
		e.Forfeit = forfeit != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanChallenge(row rowScanner) (challenge.Instance, error) {
	var (
		inst                challenge.Instance
		round, kind, status string
		teams               string
		results             sql.NullString
		openedAt            int64
		lockedAt, scoredAt  sql.NullInt64
	)
	err := row.Scan(&inst.SeasonID, &inst.Day, &round, &kind, &inst.TopN, &teams, &status,
		&inst.SeedCommit, &inst.ServerSeed, &results, &openedAt, &lockedAt, &scoredAt)
	if err != nil {
		return challenge.Instance{}, err
	}
	inst.Round = challenge.Round(round)
	inst.Kind = challenge.Kind(kind)
	inst.Status = challenge.Status(status)
	inst.OpenedAt = fromMillis(openedAt)
	inst.LockedAt = fromNullMillis(lockedAt)
	inst.ScoredAt = fromNullMillis(scoredAt)
	if err := decodeJSON(teams, &inst.Teams); err != nil {
		return challenge.Instance{}, err
	}
	if len(inst.Teams) == 0 {
		inst.Teams = nil
	}
	if results.Valid {
		var r challenge.Results
		if err := decodeJSON(results.String, &r); err != nil {
			return challenge.Instance{}, err
		}
		inst.Results = &r
	}
	return inst, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
