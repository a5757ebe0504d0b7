// Package repository selects the JobExecutionRepository backend from configuration.
package repository

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Repository types accepted by infrastructure.job_repository_type.
const (
	TypeInMemory = "inmemory"
	TypeSQL      = "sql"
)

// Params are the Fx dependencies of NewJobExecutionRepository.
type Params struct {
	fx.In
	Cfg        *config.Config
	DBResolver database.DBConnectionResolver `optional:"true"`
}

// NewJobExecutionRepository returns the configured repository.
func NewJobExecutionRepository(p Params) (repository.JobExecutionRepository, error) {
	infra := p.Cfg.ChunkBatch.Infrastructure
	switch infra.JobRepositoryType {
	case "", TypeInMemory:
		logger.Debugf("Job executions are kept in memory.")
		return inmemory.NewInMemoryJobRepository(), nil
	case TypeSQL:
		if p.DBResolver == nil {
			return nil, fmt.Errorf("job repository type '%s' requires a database connection resolver", infra.JobRepositoryType)
		}
		logger.Debugf("Job executions are stored on connection '%s'.", infra.JobRepositoryDBRef)
		return sqlrepo.NewSQLJobRepository(p.DBResolver, infra.JobRepositoryDBRef), nil
	default:
		return nil, fmt.Errorf("unknown job repository type: %s", infra.JobRepositoryType)
	}
}

// Module provides the configured repository.JobExecutionRepository.
var Module = fx.Provide(NewJobExecutionRepository)
