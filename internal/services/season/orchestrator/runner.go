package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/platform/timeouts"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/storage"
	"github.com/rs/zerolog"
)

// Attempt outcomes recorded in the step ledger.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
	defaultPollInterval = 30 * time.Second
)

// RetryPolicy bounds how often a failing step is retried before the season
// is stalled.
type RetryPolicy struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseDelay   time.Duration `env:"BASE_DELAY" envDefault:"500ms"`
	MaxDelay    time.Duration `env:"MAX_DELAY" envDefault:"30s"`
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = defaultMaxDelay
		if p.MaxDelay < p.BaseDelay {
			p.MaxDelay = p.BaseDelay
		}
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	return b
}

// Runner advances one season until it completes, aborts, or ctx ends.
type Runner struct {
	orch     *Orchestrator
	seasonID string
	policy   RetryPolicy
	poll     time.Duration
	wake     chan struct{}
	logger   zerolog.Logger
}

// NewRunner builds the runner for seasonID. poll caps how long the runner
// sleeps before re-reading the season row.
func NewRunner(orch *Orchestrator, seasonID string, policy RetryPolicy, poll time.Duration) *Runner {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Runner{
		orch:     orch,
		seasonID: seasonID,
		policy:   policy.normalized(),
		poll:     poll,
		wake:     make(chan struct{}, 1),
		logger:   orch.logger.With().Str("season_id", seasonID).Logger(),
	}
}

// Wake makes a sleeping runner re-read its season now.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run loops until the season is terminal or ctx is canceled. Stalled and
// paused seasons are polled until an operator resumes them.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Msg("season runner started")
	defer r.logger.Info().Msg("season runner stopped")

	for {
		sn, err := r.orch.store.GetSeason(ctx, r.seasonID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn().Err(err).Msg("load season")
			if !r.sleep(ctx, r.policy.BaseDelay) {
				return nil
			}
			continue
		}
		if sn.Terminal() {
			r.logger.Info().Str("status", string(sn.Status)).Str("run_state", string(sn.RunState)).Msg("season finished")
			return nil
		}
		now := r.orch.Now()
		if sn.Due(now) {
			if err := r.advance(ctx, sn); err != nil && ctx.Err() != nil {
				return nil
			}
			continue
		}
		wait := r.poll
		if sn.Runnable() {
			if d := sn.Wait(now); d < wait {
				wait = d
			}
		}
		if !r.sleep(ctx, wait) {
			return nil
		}
	}
}

// advance runs the due step under the retry policy, stalling the season
// once the policy gives up.
func (r *Runner) advance(ctx context.Context, sn season.Season) error {
	phase := sn.NextPhase
	attempt := 0
	op := func() (StepResult, error) {
		attempt++
		stepCtx, cancel := context.WithTimeout(ctx, timeouts.StoreStep)
		defer cancel()

		res, err := r.orch.Step(stepCtx, r.seasonID)
		if err == nil && !res.Ran {
			return res, nil
		}
		r.record(ctx, sn.DayIndex, phase, attempt, err)
		if err != nil && apperrors.IsPermanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.policy.backOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn().Err(err).Str("phase", string(phase)).Dur("retry_in", next).Msg("season step failed; retrying")
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.logger.Error().
		Err(err).
		Str("phase", string(phase)).
		Str("code", string(apperrors.CodeOf(err))).
		Int("attempts", attempt).
		Msg("season step failed; stalling season")
	if _, stallErr := r.orch.Stall(ctx, r.seasonID, phase, err); stallErr != nil {
		r.logger.Error().Err(stallErr).Msg("stall season")
		return errors.Join(err, stallErr)
	}
	return err
}

func (r *Runner) record(ctx context.Context, day int, phase season.Phase, attempt int, stepErr error) {
	rec := storage.AttemptRecord{
		SeasonID:  r.seasonID,
		Day:       day,
		Phase:     phase,
		Attempt:   attempt,
		Outcome:   OutcomeSucceeded,
		CreatedAt: r.orch.Now(),
	}
	if stepErr != nil {
		rec.Error = stepErr.Error()
		rec.Outcome = OutcomeRetry
		if apperrors.IsPermanent(stepErr) || attempt >= r.policy.MaxAttempts {
			rec.Outcome = OutcomeFailed
		}
	}
	if err := r.orch.store.RecordAttempt(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Msg("record step attempt")
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-r.wake:
		return true
	case <-timer.C:
		return true
	}
}
