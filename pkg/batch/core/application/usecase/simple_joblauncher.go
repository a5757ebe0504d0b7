package usecase

import (
	"context"
	"fmt"
	"sync"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobLauncher implements JobLauncher for local, synchronous execution.
type SimpleJobLauncher struct {
	registry  *runner.Registry
	jobRunner *runner.SimpleJobRunner
	// activeJobCancellations holds the cancel functions of running executions.
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(registry *runner.Registry, jobRunner *runner.SimpleJobRunner) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		registry:               registry,
		jobRunner:              jobRunner,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

// Launch implements JobLauncher.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string) (*model.JobExecution, error) {
	job, err := l.registry.Get(jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_launcher", fmt.Sprintf("Failed to launch job '%s'", jobName), err, false, false)
	}

	jobExecution := model.NewJobExecution(jobName)
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.registerCancelFunc(jobExecution.ID, cancel)
	defer l.unregisterCancelFunc(jobExecution.ID)

	logger.Infof("Launching Job '%s' (Execution ID: %s).", jobName, jobExecution.ID)
	runErr := l.jobRunner.RunExecution(jobCtx, job, jobExecution)
	if jobExecution.Status == model.JobStatusNotStarted {
		return nil, runErr
	}
	return jobExecution, runErr
}

// Stop implements JobLauncher.
func (l *SimpleJobLauncher) Stop(executionID string) error {
	l.mu.Lock()
	cancel, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if !ok {
		return exception.NewBatchErrorf("job_launcher", "JobExecution (ID: %s) is not running", executionID)
	}
	cancel()
	logger.Infof("Sent stop signal for JobExecution (ID: %s).", executionID)
	return nil
}

// Running returns the IDs of the executions currently in progress.
func (l *SimpleJobLauncher) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.activeJobCancellations))
	for id := range l.activeJobCancellations {
		ids = append(ids, id)
	}
	return ids
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("Registered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeJobCancellations, executionID)
	logger.Debugf("Unregistered CancelFunc for JobExecution (ID: %s).", executionID)
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)
