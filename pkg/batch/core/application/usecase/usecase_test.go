package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
)

// blockingSource hands out items, pausing before the second one until released.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	next    int
}

func (s *blockingSource) Read(ctx context.Context) (int, error) {
	s.next++
	switch s.next {
	case 1:
		return 1, nil
	case 2:
		close(s.started)
		<-s.release
		return 2, nil
	case 3:
		return 3, nil
	default:
		return 0, port.ErrNoMoreItems
	}
}

func newLauncher(t *testing.T, jobs ...port.Job) (*usecase.SimpleJobLauncher, *usecase.SimpleJobExplorer) {
	t.Helper()
	repo := inmemory.NewInMemoryJobRepository()
	registry, err := runner.NewRegistry(jobs...)
	require.NoError(t, err)
	return usecase.NewSimpleJobLauncher(registry, runner.NewSimpleJobRunner(repo, nil, nil)), usecase.NewSimpleJobExplorer(repo)
}

func identity(ctx context.Context, i int) (int, error) { return i, nil }

func discard(ctx context.Context, items []int) error { return nil }

func TestSimpleJobLauncher_Launch(t *testing.T) {
	ctx := context.Background()
	j, err := job.NewChunkJob[int, int]("createUsersJob",
		func(ctx context.Context) (port.Source[int], error) {
			return &blockingSource{started: make(chan struct{}), release: closedChan()}, nil
		},
		port.TransformerFunc[int, int](identity),
		port.SinkFunc[int](discard),
		job.WithChunkSize(2),
	)
	require.NoError(t, err)
	launcher, explorer := newLauncher(t, j)

	je, err := launcher.Launch(ctx, "createUsersJob")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, je.Status)
	assert.Equal(t, model.RunStats{Total: 3, Success: 3}, je.Stats)
	assert.Empty(t, launcher.Running())

	found, err := explorer.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, found.Status)

	executions, err := explorer.GetJobExecutions(ctx, "createUsersJob", 10)
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	names, err := explorer.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"createUsersJob"}, names)

	_, err = launcher.Launch(ctx, "unknownJob")
	assert.Error(t, err)
	_, err = explorer.GetJobExecution(ctx, "missing")
	assert.Error(t, err)
}

func TestSimpleJobLauncher_Stop(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	j, err := job.NewChunkJob[int, int]("processIndividualJob",
		job.StaticSource[int](src),
		port.TransformerFunc[int, int](identity),
		port.SinkFunc[int](discard),
		job.WithChunkSize(1),
	)
	require.NoError(t, err)
	launcher, _ := newLauncher(t, j)

	type outcome struct {
		je  *model.JobExecution
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		je, err := launcher.Launch(context.Background(), "processIndividualJob")
		done <- outcome{je, err}
	}()

	<-src.started
	running := launcher.Running()
	require.Len(t, running, 1)
	require.NoError(t, launcher.Stop(running[0]))
	close(src.release)

	select {
	case res := <-done:
		require.Error(t, res.err)
		assert.Equal(t, model.JobStatusFailed, res.je.Status)
		// The item in flight is finished; the run stops at the next chunk boundary.
		assert.Equal(t, model.RunStats{Total: 2, Success: 2}, res.je.Stats)
	case <-time.After(5 * time.Second):
		t.Fatal("launch did not return after Stop")
	}

	assert.Error(t, launcher.Stop("unknown"))
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
