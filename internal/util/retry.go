package util

import (
	"context"
	"errors"
	"time"
)

// RetryBackoffWithContext calls fn up to maxTries times, sleeping between
// attempts with a delay that starts at baseDelay and doubles per attempt.
//
// shouldRetry decides whether an error is worth another attempt; when it
// returns false the error is surfaced immediately. Context errors always
// surface immediately. The last error is returned after the attempt
// ceiling is exhausted.
func RetryBackoffWithContext[T any](
	ctx context.Context,
	maxTries int,
	baseDelay time.Duration,
	shouldRetry func(error) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	delay := baseDelay

	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		lastErr = err

		if i == maxTries-1 {
			break
		}
		if err := SleepWithContext(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}
	return zero, lastErr
}

// SleepWithContext blocks for d or until ctx is done, whichever comes
// first. Returns ctx.Err() when interrupted.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
