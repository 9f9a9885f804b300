package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/louisbranch/outlast/internal/services/season/storage/filter"
)

const (
	defaultEventPage = 200
	maxEventPage     = 1000
)

// AppendEvent assigns the next sequence number, hashes, chains, and signs
// evt, then stores it.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := s.check(ctx); err != nil {
		return event.Event{}, err
	}
	if s.keyring == nil {
		return event.Event{}, fmt.Errorf("event integrity keyring is required")
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	var stored event.Event
	err := s.Atomic(ctx, func(tx storage.Gateway) error {
		txs := tx.(*Store)
		if _, err := txs.q.ExecContext(ctx,
			`INSERT INTO event_seq (season_id, next_seq) VALUES (?, 1) ON CONFLICT (season_id) DO NOTHING`,
			evt.SeasonID); err != nil {
			return fmt.Errorf("init event seq: %w", err)
		}
		var seq int64
		if err := txs.q.QueryRowContext(ctx, `SELECT next_seq FROM event_seq WHERE season_id = ?`, evt.SeasonID).Scan(&seq); err != nil {
			return fmt.Errorf("get event seq: %w", err)
		}
		evt.Seq = uint64(seq)
		if _, err := txs.q.ExecContext(ctx, `UPDATE event_seq SET next_seq = next_seq + 1 WHERE season_id = ?`, evt.SeasonID); err != nil {
			return fmt.Errorf("increment event seq: %w", err)
		}

		hash, err := event.EventHash(evt)
		if err != nil {
			return fmt.Errorf("compute event hash: %w", err)
		}
		evt.Hash = hash

		prevHash := ""
		if evt.Seq > 1 {
			err := txs.q.QueryRowContext(ctx, `SELECT chain_hash FROM events WHERE season_id = ? AND seq = ?`,
				evt.SeasonID, seq-1).Scan(&prevHash)
			if err != nil {
				return fmt.Errorf("load previous event: %w", err)
			}
		}
		chainHash, err := event.ChainHash(evt, prevHash)
		if err != nil {
			return fmt.Errorf("compute chain hash: %w", err)
		}
		signature, keyID, err := txs.keyring.Sign(evt.SeasonID, chainHash)
		if err != nil {
			return fmt.Errorf("sign chain hash: %w", err)
		}
		evt.PrevHash = prevHash
		evt.ChainHash = chainHash
		evt.Signature = signature
		evt.SignatureKeyID = keyID

		var payload []byte
		if len(evt.PayloadJSON) > 0 {
			payload = []byte(evt.PayloadJSON)
		}
		if _, err := txs.q.ExecContext(ctx, `
INSERT INTO events (season_id, seq, day, kind, actor_type, actor_id, entity_id, ts, payload_json,
	event_hash, prev_hash, chain_hash, signature_key_id, signature)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.SeasonID, seq, evt.Day, string(evt.Kind), string(evt.ActorType), evt.ActorID, evt.EntityID,
			toMillis(evt.Timestamp), payload, evt.Hash, evt.PrevHash, evt.ChainHash, evt.SignatureKeyID, evt.Signature,
		); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		stored = evt
		return nil
	})
	if err != nil {
		return event.Event{}, err
	}
	return stored, nil
}

// ListEvents lists a season's events in sequence order.
func (s *Store) ListEvents(ctx context.Context, q storage.EventQuery) ([]event.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.SeasonID) == "" {
		return nil, fmt.Errorf("season id is required")
	}
	cond, err := filter.ParseEvents(q.Filter)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	query := `
SELECT season_id, seq, day, kind, actor_type, actor_id, entity_id, ts, payload_json,
	event_hash, prev_hash, chain_hash, signature_key_id, signature
FROM events WHERE season_id = ? AND seq > ?`
	args := []any{q.SeasonID, int64(q.AfterSeq)}
	if !cond.Empty() {
		query += " AND (" + cond.Clause + ")"
		args = append(args, cond.Params...)
	}
	query += " ORDER BY seq LIMIT ?"
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// CountEvents counts the events stored for one day.
func (s *Store) CountEvents(ctx context.Context, seasonID string, day int) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE season_id = ? AND day = ?`, seasonID, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// VerifyChain recomputes every hash in the season's journal and checks each
// signature. It reports the first event that fails.
func (s *Store) VerifyChain(ctx context.Context, seasonID string) (storage.ChainReport, error) {
	report := storage.ChainReport{SeasonID: seasonID, Valid: true}
	if s.keyring == nil {
		return report, fmt.Errorf("event integrity keyring is required")
	}
	var lastSeq uint64
	prevChainHash := ""
	for {
		events, err := s.ListEvents(ctx, storage.EventQuery{SeasonID: seasonID, AfterSeq: lastSeq, Limit: defaultEventPage})
		if err != nil {
			return report, fmt.Errorf("list events season_id=%s: %w", seasonID, err)
		}
		if len(events) == 0 {
			return report, nil
		}
		for _, evt := range events {
			if reason := s.verifyEvent(evt, lastSeq, prevChainHash); reason != "" {
				report.Valid = false
				report.FirstBadSeq = evt.Seq
				report.Reason = reason
				return report, nil
			}
			report.Events++
			prevChainHash = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}

func (s *Store) verifyEvent(evt event.Event, lastSeq uint64, prevChainHash string) string {
	if evt.Seq != lastSeq+1 {
		return fmt.Sprintf("sequence gap: expected %d", lastSeq+1)
	}
	if evt.PrevHash != prevChainHash {
		return "prev hash mismatch"
	}
	hash, err := event.EventHash(evt)
	if err != nil {
		return "compute event hash: " + err.Error()
	}
	if hash != evt.Hash {
		return "event hash mismatch"
	}
	chainHash, err := event.ChainHash(evt, prevChainHash)
	if err != nil {
		return "compute chain hash: " + err.Error()
	}
	if chainHash != evt.ChainHash {
		return "chain hash mismatch"
	}
	if err := s.keyring.Verify(evt.SeasonID, chainHash, evt.Signature, evt.SignatureKeyID); err != nil {
		return "signature mismatch: " + err.Error()
	}
	return ""
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt             event.Event
		seq, ts         int64
		kind, actorType string
		payload         []byte
	)
	err := row.Scan(&evt.SeasonID, &seq, &evt.Day, &kind, &actorType, &evt.ActorID, &evt.EntityID, &ts, &payload,
		&evt.Hash, &evt.PrevHash, &evt.ChainHash, &evt.SignatureKeyID, &evt.Signature)
	if err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Kind = event.Kind(kind)
	evt.ActorType = event.ActorType(actorType)
	evt.Timestamp = fromMillis(ts)
	if len(payload) > 0 {
		evt.PayloadJSON = append([]byte(nil), payload...)
	}
	return evt, nil
}

// RecordAttempt appends a step attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO step_attempts (season_id, day, phase, attempt, outcome, last_error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.SeasonID, attempt.Day, string(attempt.Phase), attempt.Attempt, attempt.Outcome,
		attempt.Error, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists the most recent attempts for a season, newest first.
func (s *Store) ListAttempts(ctx context.Context, seasonID string, limit int) ([]storage.AttemptRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT id, season_id, day, phase, attempt, outcome, last_error, created_at
FROM step_attempts WHERE season_id = ? ORDER BY id DESC LIMIT ?`, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []storage.AttemptRecord
	for rows.Next() {
		var (
			rec       storage.AttemptRecord
			phase     string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SeasonID, &rec.Day, &phase, &rec.Attempt, &rec.Outcome, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.Phase = season.Phase(phase)
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
