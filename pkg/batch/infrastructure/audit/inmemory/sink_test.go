package inmemory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/audit/inmemory"
)

func TestAuditSink(t *testing.T) {
	ctx := context.Background()
	sink := inmemory.NewAuditSink()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := "a"
			if i%2 == 0 {
				job = "b"
			}
			_ = sink.Append(ctx, model.NewAuditRecord(job, "step", model.EventKindStepStarted, "Step started", nil, time.Now()))
		}(i)
	}
	wg.Wait()

	assert.Len(t, sink.Records(), 20)
	a, err := sink.FindByJobName(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, a, 10)
	limited, err := sink.FindByJobName(ctx, "b", 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	sink.Reset()
	assert.Empty(t, sink.Records())
}
