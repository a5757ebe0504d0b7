// Package runner executes jobs and records each invocation as a JobExecution.
package runner

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobRunner runs a job synchronously and persists its JobExecution.
// It never retries a job; each call is an independent invocation.
type SimpleJobRunner struct {
	jobRepository  repository.JobExecutionRepository
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewSimpleJobRunner creates a SimpleJobRunner. Nil recorder or tracer fall back to no-ops.
func NewSimpleJobRunner(repo repository.JobExecutionRepository, recorder metrics.MetricRecorder, tracer metrics.Tracer) *SimpleJobRunner {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJobRunner{
		jobRepository:  repo,
		metricRecorder: recorder,
		tracer:         tracer,
	}
}

// Run creates a new JobExecution for job and executes it.
//
// The returned execution is always non-nil and finished, except when it could not be saved.
// The returned error is the job's error, or a persistence error for the initial save.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job) (*model.JobExecution, error) {
	jobExecution := model.NewJobExecution(job.JobName())
	return jobExecution, r.RunExecution(ctx, job, jobExecution)
}

// RunExecution executes job for a JobExecution created by the caller in the NOT_STARTED state.
func (r *SimpleJobRunner) RunExecution(ctx context.Context, job port.Job, jobExecution *model.JobExecution) error {
	if err := r.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobRunner: Failed to persist JobExecution (ID: %s) initially: %v", jobExecution.ID, err)
		return exception.NewBatchError("job_runner", "Failed to save JobExecution initially", err, false, false)
	}

	if err := jobExecution.MarkAsStarted(); err != nil {
		return exception.NewBatchError("job_runner", fmt.Sprintf("JobExecution (ID: %s) cannot be started", jobExecution.ID), err, false, false)
	}
	r.update(ctx, jobExecution)

	ctx, endSpan := r.tracer.StartJobSpan(ctx, jobExecution)
	defer endSpan()
	r.metricRecorder.RecordJobStart(ctx, jobExecution)
	logger.Infof("Job '%s' (Execution ID: %s) started.", jobExecution.JobName, jobExecution.ID)

	result, runErr := r.invoke(ctx, job, jobExecution)

	if runErr != nil || result.Status == model.RunStatusFailed {
		if runErr == nil {
			runErr = exception.NewBatchErrorf("job_runner", "job '%s' reported a failed result", jobExecution.JobName)
		}
		if err := jobExecution.MarkAsFailed(result.Stats, runErr); err != nil {
			logger.Errorf("JobRunner: %v", err)
		}
		r.tracer.RecordError(ctx, "job_runner", runErr)
		logger.Errorf("Job '%s' (Execution ID: %s) failed (%s): %v", jobExecution.JobName, jobExecution.ID, result.Stats, runErr)
	} else {
		if err := jobExecution.MarkAsCompleted(result.Stats); err != nil {
			logger.Errorf("JobRunner: %v", err)
		}
		logger.Infof("Job '%s' (Execution ID: %s) completed (%s).", jobExecution.JobName, jobExecution.ID, result.Stats)
	}

	r.metricRecorder.RecordJobEnd(ctx, jobExecution)
	r.update(ctx, jobExecution)
	return runErr
}

// invoke runs the job, converting a panic into a failed result.
func (r *SimpleJobRunner) invoke(ctx context.Context, job port.Job, jobExecution *model.JobExecution) (result model.RunResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = model.RunResult{Status: model.RunStatusFailed}
			err = exception.NewBatchErrorf("job_runner", "job '%s' panicked: %v", jobExecution.JobName, p)
		}
	}()
	return job.Run(ctx, jobExecution)
}

// update persists jobExecution. Repository failures are metadata problems and do not fail the job.
func (r *SimpleJobRunner) update(ctx context.Context, jobExecution *model.JobExecution) {
	if err := r.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) to %s: %v", jobExecution.ID, jobExecution.Status, err)
	}
}
