package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobExplorer queries executions through a JobExecutionRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobExecutionRepository
}

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobExecutionRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	return jobExecution, nil
}

// GetJobExecutions retrieves the latest executions of jobName.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	jobExecutions, err := e.jobRepository.FindJobExecutionsByJobName(ctx, jobName, limit)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecutions of job '%s'", jobName), err, false, false)
	}
	logger.Debugf("Retrieved %d JobExecutions of job '%s'.", len(jobExecutions), jobName)
	return jobExecutions, nil
}

// GetJobNames retrieves the names of jobs that have executions.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := e.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", "Failed to retrieve job names", err, false, false)
	}
	return names, nil
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)
