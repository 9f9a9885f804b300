package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

const seasonColumns = `id, name, status, run_state, day_index, merged, phase, next_phase,
	phase_deadline, paused_remaining_ms, stalled_phase, stalled_error, companion, winner,
	config_json, version, created_at, updated_at, started_at, completed_at`

// CreateSeason inserts a planned season and its roster.
func (s *Store) CreateSeason(ctx context.Context, sn season.Season, players []roster.Player) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sn.ID) == "" {
		return fmt.Errorf("season id is required")
	}
	return s.Atomic(ctx, func(tx storage.Gateway) error {
		txs := tx.(*Store)
		cfg, err := encodeJSON(sn.Config)
		if err != nil {
			return err
		}
		if sn.Version == 0 {
			sn.Version = 1
		}
		_, err = txs.q.ExecContext(ctx, `
INSERT INTO seasons (`+seasonColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sn.ID, sn.Name, string(sn.Status), string(sn.RunState), sn.DayIndex, boolInt(sn.Merged),
			string(sn.Phase), string(sn.NextPhase), toMillis(sn.PhaseDeadline), sn.PausedRemaining.Milliseconds(),
			string(sn.StalledPhase), sn.StalledError, sn.Companion, sn.Winner,
			cfg, sn.Version, toMillis(sn.CreatedAt), toMillis(sn.UpdatedAt),
			toNullMillis(sn.StartedAt), toNullMillis(sn.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert season: %w", err)
		}
		for _, p := range players {
			p.SeasonID = sn.ID
			if err := txs.insertPlayer(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertPlayer(ctx context.Context, p roster.Player) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO players (season_id, id, name, tribe, archetype, item_bonus, status, role,
	eliminated_day, eliminated_after_merge, eliminated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SeasonID, p.ID, p.Name, p.Tribe, string(p.Archetype), p.ItemBonus, string(p.Status), string(p.Role),
		p.EliminatedDay, boolInt(p.EliminatedAfterMerge), toNullMillis(p.EliminatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert player %s: %w", p.ID, err)
	}
	return nil
}

// GetSeason loads a season row.
func (s *Store) GetSeason(ctx context.Context, id string) (season.Season, error) {
	if err := s.check(ctx); err != nil {
		return season.Season{}, err
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id)
	sn, err := scanSeason(row)
	if notFound(err) {
		return season.Season{}, storage.ErrNotFound
	}
	if err != nil {
		return season.Season{}, fmt.Errorf("get season: %w", err)
	}
	return sn, nil
}

// ListSeasons lists seasons, optionally restricted to statuses, oldest first.
func (s *Store) ListSeasons(ctx context.Context, statuses ...season.Status) ([]season.Season, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + seasonColumns + ` FROM seasons`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer rows.Close()
	var out []season.Season
	for rows.Next() {
		sn, err := scanSeason(rows)
		if err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// UpdateSeason writes sn when the stored version matches.
func (s *Store) UpdateSeason(ctx context.Context, sn season.Season) (season.Season, error) {
	if err := s.check(ctx); err != nil {
		return season.Season{}, err
	}
	cfg, err := encodeJSON(sn.Config)
	if err != nil {
		return season.Season{}, err
	}
	if sn.UpdatedAt.IsZero() {
		sn.UpdatedAt = s.now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE seasons SET
	name = ?, status = ?, run_state = ?, day_index = ?, merged = ?, phase = ?, next_phase = ?,
	phase_deadline = ?, paused_remaining_ms = ?, stalled_phase = ?, stalled_error = ?,
	companion = ?, winner = ?, config_json = ?, version = version + 1, updated_at = ?,
	started_at = ?, completed_at = ?
WHERE id = ? AND version = ?`,
		sn.Name, string(sn.Status), string(sn.RunState), sn.DayIndex, boolInt(sn.Merged),
		string(sn.Phase), string(sn.NextPhase), toMillis(sn.PhaseDeadline), sn.PausedRemaining.Milliseconds(),
		string(sn.StalledPhase), sn.StalledError, sn.Companion, sn.Winner, cfg, toMillis(sn.UpdatedAt),
		toNullMillis(sn.StartedAt), toNullMillis(sn.CompletedAt),
		sn.ID, sn.Version,
	)
	if err != nil {
		return season.Season{}, fmt.Errorf("update season: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return season.Season{}, fmt.Errorf("update season: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetSeason(ctx, sn.ID); getErr != nil {
			return season.Season{}, getErr
		}
		return season.Season{}, storage.ErrVersionConflict
	}
	sn.Version++
	return sn, nil
}

func scanSeason(row rowScanner) (season.Season, error) {
	var (
		sn                        season.Season
		status, runState          string
		phase, nextPhase, stalled string
		merged                    int
		deadline, pausedMs        int64
		cfg                       string
		createdAt, updatedAt      int64
		startedAt, completedAt    sql.NullInt64
	)
	err := row.Scan(
		&sn.ID, &sn.Name, &status, &runState, &sn.DayIndex, &merged, &phase, &nextPhase,
		&deadline, &pausedMs, &stalled, &sn.StalledError, &sn.Companion, &sn.Winner,
		&cfg, &sn.Version, &createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return season.Season{}, err
	}
	sn.Status = season.Status(status)
	sn.RunState = season.RunState(runState)
	sn.Merged = merged != 0
	sn.Phase = season.Phase(phase)
	sn.NextPhase = season.Phase(nextPhase)
	sn.StalledPhase = season.Phase(stalled)
	sn.PhaseDeadline = fromMillis(deadline)
	sn.PausedRemaining = time.Duration(pausedMs) * time.Millisecond
	sn.CreatedAt = fromMillis(createdAt)
	sn.UpdatedAt = fromMillis(updatedAt)
	sn.StartedAt = fromNullMillis(startedAt)
	sn.CompletedAt = fromNullMillis(completedAt)
	if err := decodeJSON(cfg, &sn.Config); err != nil {
		return season.Season{}, err
	}
	return sn, nil
}

const playerColumns = `season_id, id, name, tribe, archetype, item_bonus, status, role,
	eliminated_day, eliminated_after_merge, eliminated_at`

// ListPlayers lists a season's roster ordered by tribe then id.
func (s *Store) ListPlayers(ctx context.Context, seasonID string) ([]roster.Player, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+playerColumns+` FROM players WHERE season_id = ? ORDER BY tribe, id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()
	var out []roster.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlayer loads one roster entry.
func (s *Store) GetPlayer(ctx context.Context, seasonID, playerID string) (roster.Player, error) {
	if err := s.check(ctx); err != nil {
		return roster.Player{}, err
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE season_id = ? AND id = ?`, seasonID, playerID)
	p, err := scanPlayer(row)
	if notFound(err) {
		return roster.Player{}, storage.ErrNotFound
	}
	if err != nil {
		return roster.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// UpdatePlayer writes a player's status fields.
func (s *Store) UpdatePlayer(ctx context.Context, p roster.Player) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE players SET name = ?, tribe = ?, archetype = ?, item_bonus = ?, status = ?, role = ?,
	eliminated_day = ?, eliminated_after_merge = ?, eliminated_at = ?
WHERE season_id = ? AND id = ?`,
		p.Name, p.Tribe, string(p.Archetype), p.ItemBonus, string(p.Status), string(p.Role),
		p.EliminatedDay, boolInt(p.EliminatedAfterMerge), toNullMillis(p.EliminatedAt),
		p.SeasonID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanPlayer(row rowScanner) (roster.Player, error) {
	var (
		p                       roster.Player
		archetype, status, role string
		afterMerge              int
		eliminatedAt            sql.NullInt64
	)
	err := row.Scan(&p.SeasonID, &p.ID, &p.Name, &p.Tribe, &archetype, &p.ItemBonus, &status, &role,
		&p.EliminatedDay, &afterMerge, &eliminatedAt)
	if err != nil {
		return roster.Player{}, err
	}
	p.Archetype = roster.Archetype(archetype)
	p.Status = roster.Status(status)
	p.Role = roster.Role(role)
	p.EliminatedAfterMerge = afterMerge != 0
	p.EliminatedAt = fromNullMillis(eliminatedAt)
	return p, nil
}

const dailyStateColumns = `season_id, player_id, day, hunger, thirst, comfort, energy, medical_alert, version, updated_at`

// GetDailyState loads one player's stats for a day.
func (s *Store) GetDailyState(ctx context.Context, seasonID, playerID string, day int) (storage.DailyStateRecord, error) {
	if err := s.check(ctx); err != nil {
		return storage.DailyStateRecord{}, err
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+dailyStateColumns+` FROM player_daily_state
WHERE season_id = ? AND player_id = ? AND day = ?`, seasonID, playerID, day)
	rec, err := scanDailyState(row)
	if notFound(err) {
		return storage.DailyStateRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.DailyStateRecord{}, fmt.Errorf("get daily state: %w", err)
	}
	return rec, nil
}

// ListDailyStates lists every player's stats for a day.
func (s *Store) ListDailyStates(ctx context.Context, seasonID string, day int) ([]storage.DailyStateRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+dailyStateColumns+` FROM player_daily_state
WHERE season_id = ? AND day = ? ORDER BY player_id`, seasonID, day)
	if err != nil {
		return nil, fmt.Errorf("list daily states: %w", err)
	}
	defer rows.Close()
	var out []storage.DailyStateRecord
	for rows.Next() {
		rec, err := scanDailyState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily state: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertDailyStateIfAbsent creates a day's row once.
func (s *Store) InsertDailyStateIfAbsent(ctx context.Context, rec storage.DailyStateRecord) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if !rec.State.Valid() {
		return false, fmt.Errorf("daily state out of bounds for %s", rec.PlayerID)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO player_daily_state (`+dailyStateColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT (season_id, player_id, day) DO NOTHING`,
		rec.SeasonID, rec.PlayerID, rec.Day,
		rec.State.Hunger, rec.State.Thirst, rec.State.Comfort, rec.State.Energy, boolInt(rec.State.MedicalAlert),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert daily state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert daily state: %w", err)
	}
	return n > 0, nil
}

// CompareAndSwapDailyState replaces a row if its version is unchanged.
func (s *Store) CompareAndSwapDailyState(ctx context.Context, rec storage.DailyStateRecord) (storage.DailyStateRecord, error) {
	if err := s.check(ctx); err != nil {
		return storage.DailyStateRecord{}, err
	}
	if !rec.State.Valid() {
		return storage.DailyStateRecord{}, fmt.Errorf("daily state out of bounds for %s", rec.PlayerID)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE player_daily_state SET hunger = ?, thirst = ?, comfort = ?, energy = ?, medical_alert = ?,
	version = version + 1, updated_at = ?
WHERE season_id = ? AND player_id = ? AND day = ? AND version = ?`,
		rec.State.Hunger, rec.State.Thirst, rec.State.Comfort, rec.State.Energy, boolInt(rec.State.MedicalAlert),
		toMillis(rec.UpdatedAt),
		rec.SeasonID, rec.PlayerID, rec.Day, rec.Version,
	)
	if err != nil {
		return storage.DailyStateRecord{}, fmt.Errorf("update daily state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.DailyStateRecord{}, fmt.Errorf("update daily state: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetDailyState(ctx, rec.SeasonID, rec.PlayerID, rec.Day); getErr != nil {
			return storage.DailyStateRecord{}, getErr
		}
		return storage.DailyStateRecord{}, storage.ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = rec.UpdatedAt.UTC().Truncate(time.Millisecond)
	return rec, nil
}

func scanDailyState(row rowScanner) (storage.DailyStateRecord, error) {
	var (
		rec       storage.DailyStateRecord
		medical   int
		updatedAt int64
	)
	err := row.Scan(&rec.SeasonID, &rec.PlayerID, &rec.Day,
		&rec.State.Hunger, &rec.State.Thirst, &rec.State.Comfort, &rec.State.Energy, &medical,
		&rec.Version, &updatedAt)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	rec.State.MedicalAlert = medical != 0
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// PutDaySummary stores a day's summary once.
func (s *Store) PutDaySummary(ctx context.Context, summary season.DaySummary) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	evacuated := summary.Evacuated
	if evacuated == nil {
		evacuated = []string{}
	}
	evacJSON, err := encodeJSON(evacuated)
	if err != nil {
		return false, err
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = s.now()
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO day_summaries (season_id, day, events_emitted, eliminated, evacuated_json, active_at_end, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (season_id, day) DO NOTHING`,
		summary.SeasonID, summary.Day, summary.EventsEmitted, summary.Eliminated, evacJSON,
		summary.ActiveAtEnd, toMillis(summary.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert day summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert day summary: %w", err)
	}
	return n > 0, nil
}

// ListDaySummaries lists a season's summaries by day.
func (s *Store) ListDaySummaries(ctx context.Context, seasonID string) ([]season.DaySummary, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT season_id, day, events_emitted, eliminated, evacuated_json, active_at_end, created_at
FROM day_summaries WHERE season_id = ? ORDER BY day`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list day summaries: %w", err)
	}
	defer rows.Close()
	var out []season.DaySummary
	for rows.Next() {
		var (
			sum       season.DaySummary
			evacJSON  string
			createdAt int64
		)
		if err := rows.Scan(&sum.SeasonID, &sum.Day, &sum.EventsEmitted, &sum.Eliminated, &evacJSON,
			&sum.ActiveAtEnd, &createdAt); err != nil {
			return nil, fmt.Errorf("scan day summary: %w", err)
		}
		if err := decodeJSON(evacJSON, &sum.Evacuated); err != nil {
			return nil, err
		}
		if len(sum.Evacuated) == 0 {
			sum.Evacuated = nil
		}
		sum.CreatedAt = fromMillis(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}
