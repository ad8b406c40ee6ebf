package concurrency

import (
	"context"
	"time"
)

// Operation is one attempt of a retried unit of work. attempt starts at 0.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// IsRetryable decides whether a failed attempt may be repeated.
type IsRetryable func(err error) bool

// Backoff returns the delay before the attempt following the failed attempt n.
func Backoff(baseDelay time.Duration, n int) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	return baseDelay << uint(n)
}

// Retry runs op up to maxAttempts times. Failures rejected by isRetryable are
// returned immediately; retryable ones sleep baseDelay*2^attempt before the
// next attempt. The last error is returned once attempts are exhausted.
func Retry[T any](ctx context.Context, op Operation[T], isRetryable IsRetryable, maxAttempts int, baseDelay time.Duration) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err = op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if isRetryable == nil || !isRetryable(err) || attempt == maxAttempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(baseDelay, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return result, err
}

// RetryErr is Retry for operations without a result.
func RetryErr(ctx context.Context, op func(ctx context.Context, attempt int) error, isRetryable IsRetryable, maxAttempts int, baseDelay time.Duration) error {
	_, err := Retry(ctx, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	}, isRetryable, maxAttempts, baseDelay)
	return err
}
