package skip_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestAllOrNothing(t *testing.T) {
	p := skip.AllOrNothing()
	for _, n := range []int{0, 1, 100} {
		assert.Equal(t, skip.Abort, p.OnItemFailure(n))
	}
	assert.False(t, p.CanSkip(errors.New("any")))
}

func TestSkipLimited_Boundary(t *testing.T) {
	tests := []struct {
		limit int
		count int
		want  skip.Decision
	}{
		{limit: 0, count: 0, want: skip.Abort},
		{limit: 1, count: 0, want: skip.Continue},
		{limit: 1, count: 1, want: skip.Abort},
		{limit: 10, count: 9, want: skip.Continue},
		{limit: 10, count: 10, want: skip.Abort},
		{limit: model.Unbounded, count: 1_000_000, want: skip.Continue},
	}
	for _, tt := range tests {
		p := skip.SkipLimited(tt.limit)
		assert.Equal(t, tt.want, p.OnItemFailure(tt.count), "limit=%d count=%d", tt.limit, tt.count)
	}
}

func TestSkipLimited_NegativeLimitIsUnbounded(t *testing.T) {
	p := skip.SkipLimited(-42)
	assert.Equal(t, model.Unbounded, p.SkipLimit())
	assert.Equal(t, skip.Continue, p.OnItemFailure(99))
}

func TestSkipLimited_CanSkip(t *testing.T) {
	transformErr := exception.NewTransformError("step", errors.New("invalid_email"))
	other := errors.New("boom")

	open := skip.SkipLimited(1)
	assert.True(t, open.CanSkip(transformErr))
	assert.True(t, open.CanSkip(other))
	assert.False(t, open.CanSkip(nil))

	restricted := skip.SkipLimited(1, skip.WithSkippable("TransformError"))
	assert.True(t, restricted.CanSkip(transformErr))
	assert.False(t, restricted.CanSkip(other))

	flagged := exception.NewBatchError("processor", "bad row", other, true, false)
	assert.True(t, restricted.CanSkip(flagged))
}

func TestSkipLimited_CanSkipSentinelDoesNotMatchOtherErrors(t *testing.T) {
	p := skip.SkipLimited(10, skip.WithSkippable("context.Canceled"))

	assert.False(t, p.CanSkip(errors.New("disk full")))
	assert.False(t, p.CanSkip(fmt.Errorf("invalid email: %s", "bad-address")))
	assert.True(t, p.CanSkip(fmt.Errorf("read: %w", context.Canceled)))
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewConfig().ChunkBatch.Batch

	p, err := skip.FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, skip.Abort, p.OnItemFailure(0))

	cfg.FaultPolicy = config.FaultPolicySkipLimited
	cfg.ItemSkip.SkipLimit = 2
	p, err = skip.FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, p.SkipLimit())
	assert.Equal(t, skip.Continue, p.OnItemFailure(1))
	assert.Equal(t, skip.Abort, p.OnItemFailure(2))

	cfg.FaultPolicy = "nope"
	_, err = skip.FromConfig(cfg)
	assert.Error(t, err)
}
