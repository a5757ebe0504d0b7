package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func TestInMemoryJobRepository_SaveAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	je := model.NewJobExecution("createUsersJob")
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	assert.Error(t, repo.SaveJobExecution(ctx, je), "duplicate IDs are rejected")

	require.NoError(t, je.MarkAsStarted())
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	found, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, found.Status)

	// The returned copy is detached from the stored execution.
	found.Status = model.JobStatusFailed
	again, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, again.Status)

	// A stale copy cannot overwrite a newer version.
	stale := test.NewTestJobExecution("createUsersJob", model.JobStatusRunning)
	stale.ID = je.ID
	err = repo.UpdateJobExecution(ctx, stale)
	assert.ErrorIs(t, err, repository.ErrOptimisticLockingFailure)

	unknown := model.NewJobExecution("other")
	assert.ErrorIs(t, repo.UpdateJobExecution(ctx, unknown), repository.ErrJobExecutionNotFound)

	_, err = repo.FindJobExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	assert.NoError(t, repo.Close())
}

func TestInMemoryJobRepository_FindByJobName(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		je := model.NewJobExecution("processEntireJob")
		je.CreateTime = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveJobExecution(ctx, je))
	}
	require.NoError(t, repo.SaveJobExecution(ctx, model.NewJobExecution("createUsersJob")))

	all, err := repo.FindJobExecutionsByJobName(ctx, "processEntireJob", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreateTime.After(all[1].CreateTime))
	assert.True(t, all[1].CreateTime.After(all[2].CreateTime))

	latest, err := repo.FindJobExecutionsByJobName(ctx, "processEntireJob", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, base.Add(2*time.Minute), latest[0].CreateTime)

	none, err := repo.FindJobExecutionsByJobName(ctx, "unknownJob", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"createUsersJob", "processEntireJob"}, names)
}
