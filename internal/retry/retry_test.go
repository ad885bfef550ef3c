package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("upstream status 503")

func fastConfig() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentAndNonRetryable(t *testing.T) {
	t.Parallel()

	bad := errors.New("invalid request")

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return retry.Permanent(errFlaky)
	})
	require.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return bad
	})
	require.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, retry.IsTransient(context.DeadlineExceeded))
	assert.True(t, retry.IsTransient(errors.New("429 Too Many Requests")))
	assert.False(t, retry.IsTransient(context.Canceled))
	assert.False(t, retry.IsTransient(nil))
	assert.False(t, retry.IsTransient(errors.New("bad request")))
}
