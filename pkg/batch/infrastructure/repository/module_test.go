package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func TestNewJobExecutionRepository(t *testing.T) {
	cfg := config.NewConfig()
	repo, err := repository.NewJobExecutionRepository(repository.Params{Cfg: cfg})
	require.NoError(t, err)
	assert.IsType(t, &inmemory.InMemoryJobRepository{}, repo)

	cfg.ChunkBatch.Infrastructure.JobRepositoryType = repository.TypeSQL
	_, err = repository.NewJobExecutionRepository(repository.Params{Cfg: cfg})
	assert.ErrorContains(t, err, "requires a database connection resolver")

	resolver := &test.MockDBConnectionResolver{}
	repo, err = repository.NewJobExecutionRepository(repository.Params{Cfg: cfg, DBResolver: resolver})
	require.NoError(t, err)
	assert.IsType(t, &sqlrepo.SQLJobRepository{}, repo)

	cfg.ChunkBatch.Infrastructure.JobRepositoryType = "etcd"
	_, err = repository.NewJobExecutionRepository(repository.Params{Cfg: cfg})
	assert.ErrorContains(t, err, "unknown job repository type")
}
