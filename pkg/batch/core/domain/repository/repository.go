// Package repository defines how job executions are persisted.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ErrJobExecutionNotFound is the error returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

// ErrOptimisticLockingFailure is returned when an update finds a newer version than expected.
var ErrOptimisticLockingFailure = errors.New("optimistic locking failure")

func init() {
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrOptimisticLockingFailure", ErrOptimisticLockingFailure)
}

// JobExecutionRepository persists the JobExecutions created by the job runner.
type JobExecutionRepository interface {
	// SaveJobExecution persists a new JobExecution.
	SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateJobExecution updates the state of an existing JobExecution.
	// The stored version must equal jobExecution.Version; on success the version is incremented.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// FindJobExecutionByID finds a JobExecution by its ID.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)

	// FindJobExecutionsByJobName returns the executions of jobName, newest first.
	// limit <= 0 returns all of them.
	FindJobExecutionsByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error)

	// GetJobNames returns the distinct names of the jobs that have executions.
	GetJobNames(ctx context.Context) ([]string, error)

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
