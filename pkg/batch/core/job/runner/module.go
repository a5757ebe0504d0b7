package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// JobGroup is the Fx value group collecting the application's jobs.
const JobGroup = "jobs"

// SimpleJobRunnerParams defines dependencies for SimpleJobRunner.
type SimpleJobRunnerParams struct {
	fx.In
	JobRepository  repository.JobExecutionRepository
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewJobRunner provides the SimpleJobRunner.
func NewJobRunner(p SimpleJobRunnerParams) *SimpleJobRunner {
	return NewSimpleJobRunner(p.JobRepository, p.MetricRecorder, p.Tracer)
}

// RegistryParams collects the jobs contributed to the "jobs" group.
type RegistryParams struct {
	fx.In
	Jobs []port.Job `group:"jobs"`
}

// NewJobRegistry builds the Registry from the "jobs" group.
func NewJobRegistry(p RegistryParams) (*Registry, error) {
	return NewRegistry(p.Jobs...)
}

// Module provides the SimpleJobRunner and the job Registry.
var Module = fx.Options(
	fx.Provide(NewJobRunner),
	fx.Provide(NewJobRegistry),
)
