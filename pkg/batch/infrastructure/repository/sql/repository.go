// Package sql implements repository.JobExecutionRepository on a named database connection.
package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SQLJobRepository implements the repository.JobExecutionRepository interface.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the connection used by this repository (e.g., "metadata").
	dbName string
}

// NewSQLJobRepository creates a new instance of SQLJobRepository.
//
// Parameters:
//
//	dbResolver: The database connection resolver.
//	dbName: The name of the database connection to be used by this repository (e.g., "metadata").
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

// getDBConnection resolves the connection on every call so that a reconnected pool is picked up.
func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// getExecutor returns the transaction carried by ctx, or the plain connection.
func (r *SQLJobRepository) getExecutor(ctx context.Context) (database.DBExecutor, error) {
	if t, ok := tx.FromContext(ctx); ok {
		return t, nil
	}
	return r.getDBConnection(ctx)
}

// SaveJobExecution implements repository.JobExecutionRepository.
// A missing table (migrations not yet applied) is tolerated with a warning.
func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	entity := fromDomainJobExecution(jobExecution)

	executor, err := r.getExecutor(ctx)
	if err != nil {
		return err
	}

	_, err = executor.ExecuteUpdate(ctx, entity, database.OperationCreate, entity.TableName(), nil)
	if err != nil {
		if executor.IsTableNotExistError(err) {
			logger.Warnf("%s: table '%s' does not exist, JobExecution (ID: %s) is not persisted.", op, entity.TableName(), jobExecution.ID)
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

// UpdateJobExecution implements repository.JobExecutionRepository with an optimistic version check.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"

	originalVersion := jobExecution.Version
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	entity := fromDomainJobExecution(jobExecution)

	executor, err := r.getExecutor(ctx)
	if err != nil {
		jobExecution.Version = originalVersion
		return err
	}

	rowsAffected, err := executor.ExecuteUpdate(
		ctx,
		entity,
		database.OperationUpdate,
		entity.TableName(),
		map[string]interface{}{"version": originalVersion},
	)
	if err != nil {
		jobExecution.Version = originalVersion
		if executor.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	if rowsAffected == 0 {
		jobExecution.Version = originalVersion
		return exception.NewBatchError("repository", fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, originalVersion), repository.ErrOptimisticLockingFailure, false, false)
	}
	return nil
}

// FindJobExecutionByID implements repository.JobExecutionRepository.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	var entity JobExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	err = conn.ExecuteQueryAdvanced(ctx, &entity, map[string]interface{}{"id": executionID}, "", 1, 0)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, true, false)
	}
	if entity.ID == "" {
		return nil, repository.ErrJobExecutionNotFound
	}
	return toDomainJobExecution(&entity), nil
}

// FindJobExecutionsByJobName implements repository.JobExecutionRepository.
func (r *SQLJobRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionsByJobName"
	var entities []JobExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	if limit < 0 {
		limit = 0
	}
	err = conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "create_time desc", limit, 0)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecutions of job '%s'", jobName), err, true, false)
	}

	executions := make([]*model.JobExecution, len(entities))
	for i := range entities {
		executions[i] = toDomainJobExecution(&entities[i])
	}
	return executions, nil
}

// GetJobNames implements repository.JobExecutionRepository.
func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	const op = "SQLJobRepository.GetJobNames"
	var jobNames []string

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	err = conn.Pluck(ctx, &JobExecutionEntity{}, "job_name", &jobNames, nil)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return []string{}, nil
		}
		return nil, exception.NewBatchError(op, "failed to pluck job names", err, true, false)
	}
	return jobNames, nil
}

// Close is a no-op; connections are owned by the resolver.
func (r *SQLJobRepository) Close() error {
	return nil
}

var _ repository.JobExecutionRepository = (*SQLJobRepository)(nil)
