package database

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	apperrors "tableside/internal/errors"
)

// Backoff before attempt 1 (0ms), attempt 2 (100ms), attempt 3 (200ms). Later
// attempts reuse the last interval.
var retryBackoffs = []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or
// maxAttempts transactions have been aborted by lock contention. In the last
// case it returns a DeadlockError.
func (db *DB) WithRetry(ctx context.Context, maxAttempts int, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !db.IsRetryable(err) {
			return err
		}

		logger.Warn("transaction aborted by lock contention",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err),
		)
	}

	return apperrors.NewDeadlockError("max retries exceeded")
}

// backoff returns the base interval for the given attempt index with ±20%
// jitter.
func backoff(idx int) time.Duration {
	if idx >= len(retryBackoffs) {
		idx = len(retryBackoffs) - 1
	}
	base := retryBackoffs[idx]
	if base == 0 {
		return 0
	}
	jitter := time.Duration(float64(base) * (rand.Float64()*0.4 - 0.2))
	return base + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
