package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
)

// deltaAttempts bounds compare-and-swap retries for one ApplyDelta call.
const deltaAttempts = 8

// ApplyDelta adds delta to a player's daily state with every stat clamped.
// The write is a compare-and-swap on the row version and is retried when a
// concurrent writer wins.
func ApplyDelta(ctx context.Context, store DailyStateStore, seasonID, playerID string, day int, delta stats.Delta) (DailyStateRecord, error) {
	op := func() (DailyStateRecord, error) {
		current, err := store.GetDailyState(ctx, seasonID, playerID, day)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return DailyStateRecord{}, backoff.Permanent(apperrors.WithMetadata(
					apperrors.CodeDailyStateMissing,
					"no daily state for player and day",
					map[string]string{"PlayerID": playerID},
				))
			}
			return DailyStateRecord{}, err
		}
		if delta.IsZero() {
			return current, nil
		}
		next := current
		next.State = current.State.Apply(delta)
		next.UpdatedAt = time.Now().UTC()
		stored, err := store.CompareAndSwapDailyState(ctx, next)
		if err != nil && !apperrors.HasCode(err, apperrors.CodeVersionConflict) {
			return DailyStateRecord{}, backoff.Permanent(err)
		}
		return stored, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond
	return backoff.Retry(ctx, op, backoff.WithBackOff(policy), backoff.WithMaxTries(deltaAttempts))
}
