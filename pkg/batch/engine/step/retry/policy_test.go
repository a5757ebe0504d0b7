package retry_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

var errTransient = exception.NewBatchError("processor", "lookup timed out", errors.New("timeout"), false, true)

func TestShouldRetry(t *testing.T) {
	p := retry.New(3, 0, []string{"io.EOF"})

	assert.True(t, p.ShouldRetry(errTransient))
	assert.False(t, p.ShouldRetry(errors.New("invalid_email")))
	assert.False(t, p.ShouldRetry(nil))

	assert.False(t, retry.NoRetry().ShouldRetry(errTransient))
}

func TestShouldRetry_SentinelDoesNotMatchOtherErrors(t *testing.T) {
	p := retry.New(3, 0, []string{"sql.ErrNoRows"})

	assert.False(t, p.ShouldRetry(errors.New("constraint violated")))
	assert.True(t, p.ShouldRetry(fmt.Errorf("lookup: %w", sql.ErrNoRows)))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	out, retries, err := retry.Do(context.Background(), retry.New(3, time.Millisecond, nil), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, retries)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, retries, err := retry.Do(context.Background(), retry.New(2, 0, nil), func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, retries)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableErrorIsReturnedImmediately(t *testing.T) {
	calls := 0
	invalid := errors.New("invalid_email")
	_, retries, err := retry.Do(context.Background(), retry.New(5, 0, nil), func(ctx context.Context) (int, error) {
		calls++
		return 0, invalid
	})
	assert.ErrorIs(t, err, invalid)
	assert.Zero(t, retries)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := retry.Do(ctx, retry.New(3, time.Hour, nil), func(ctx context.Context) (int, error) {
		return 0, errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfig(t *testing.T) {
	p := retry.FromConfig(config.ItemRetryConfig{MaxAttempts: 2, InitialInterval: 250})
	assert.Equal(t, 2, p.MaxAttempts())
	assert.Equal(t, 250*time.Millisecond, p.Backoff(1))
}
