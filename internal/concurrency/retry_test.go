package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		if attempt < 1 {
			return 0, apperror.ConcurrencyConflict("room", "1")
		}
		return 42, nil
	}, apperror.IsConcurrencyConflict, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestRetrySurfacesConflictAfterExhaustion(t *testing.T) {
	calls := 0
	err := RetryErr(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return apperror.ConcurrencyConflict("admission", "9")
	}, apperror.IsConcurrencyConflict, 3, time.Millisecond)

	assert.True(t, apperror.IsConcurrencyConflict(err))
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRepeatNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryErr(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return boom
	}, apperror.IsConcurrencyConflict, 3, time.Millisecond)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryErr(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return apperror.ConcurrencyConflict("room", "1")
	}, apperror.IsConcurrencyConflict, 3, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, Backoff(base, 0))
	assert.Equal(t, 200*time.Millisecond, Backoff(base, 1))
	assert.Equal(t, 400*time.Millisecond, Backoff(base, 2))
	assert.Equal(t, time.Duration(0), Backoff(0, 2))
}
