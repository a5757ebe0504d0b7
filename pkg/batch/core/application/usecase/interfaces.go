// Package usecase exposes job launching and execution queries to the application layer.
package usecase

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobLauncher launches registered jobs by name.
type JobLauncher interface {
	// Launch runs the named job to completion and returns its finished JobExecution.
	// The error is the job's failure cause, or a launch error when the execution is nil.
	Launch(ctx context.Context, jobName string) (*model.JobExecution, error)

	// Stop cancels a running execution. The job observes the cancellation at its next
	// chunk boundary and finishes as FAILED.
	Stop(executionID string) error
}

// JobExplorer queries recorded executions.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions retrieves the latest executions of jobName, newest first.
	GetJobExecutions(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error)

	// GetJobNames retrieves the names of jobs that have executions.
	GetJobNames(ctx context.Context) ([]string, error)
}
