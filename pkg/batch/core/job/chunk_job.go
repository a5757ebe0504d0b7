// Package job binds a source, a transformer and a sink into a named, runnable chunk job.
package job

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/audit"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SourceFactory opens a fresh Source for one invocation of a job.
type SourceFactory[I any] func(ctx context.Context) (port.Source[I], error)

// StaticSource returns a SourceFactory that hands out src on every invocation.
// Only use it for sources that are safe to share between invocations.
func StaticSource[I any](src port.Source[I]) SourceFactory[I] {
	return func(ctx context.Context) (port.Source[I], error) { return src, nil }
}

type jobSettings struct {
	stepName       string
	chunkSize      int
	faultPolicy    skip.FaultPolicy
	retryPolicy    retry.RetryPolicy
	auditSink      port.AuditSink
	listeners      port.Listeners
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Option configures a ChunkJob.
type Option func(*jobSettings)

// WithStepName sets the name of the job's step. The default is "<job name>Step".
func WithStepName(name string) Option {
	return func(s *jobSettings) { s.stepName = name }
}

// WithChunkSize sets the chunk size, a positive number or model.Unbounded.
func WithChunkSize(size int) Option {
	return func(s *jobSettings) { s.chunkSize = size }
}

// WithFaultPolicy sets the fault policy of the step.
func WithFaultPolicy(p skip.FaultPolicy) Option {
	return func(s *jobSettings) { s.faultPolicy = p }
}

// WithRetryPolicy sets the transform retry policy of the step.
func WithRetryPolicy(p retry.RetryPolicy) Option {
	return func(s *jobSettings) { s.retryPolicy = p }
}

// WithAuditSink records every step event through an audit.TelemetryListener appending to sink.
func WithAuditSink(sink port.AuditSink) Option {
	return func(s *jobSettings) { s.auditSink = sink }
}

// WithListeners adds listeners that observe every invocation.
func WithListeners(ls ...port.Listener) Option {
	return func(s *jobSettings) { s.listeners = append(s.listeners, ls...) }
}

// WithMetricRecorder sets the metric recorder passed to the step.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(s *jobSettings) { s.metricRecorder = r }
}

// WithTracer sets the tracer passed to the step.
func WithTracer(t metrics.Tracer) Option {
	return func(s *jobSettings) { s.tracer = t }
}

// ChunkJob is a port.Job running one chunk step. It keeps no state between invocations.
type ChunkJob[I, O any] struct {
	name        string
	newSource   SourceFactory[I]
	transformer port.Transformer[I, O]
	sink        port.Sink[O]
	jobSettings
}

// NewChunkJob creates a ChunkJob. The step is validated once here so that
// misconfiguration is reported before the first invocation.
func NewChunkJob[I, O any](name string, newSource SourceFactory[I], transformer port.Transformer[I, O], sink port.Sink[O], opts ...Option) (*ChunkJob[I, O], error) {
	s := jobSettings{
		chunkSize:   item.DefaultChunkSize,
		faultPolicy: skip.AllOrNothing(),
		retryPolicy: retry.NoRetry(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if name == "" {
		return nil, exception.NewBatchErrorf("job", "job name must not be empty")
	}
	if newSource == nil {
		return nil, exception.NewBatchErrorf("job", "job '%s' requires a source factory", name)
	}
	if s.stepName == "" {
		s.stepName = name + "Step"
	}

	j := &ChunkJob[I, O]{
		name:        name,
		newSource:   newSource,
		transformer: transformer,
		sink:        sink,
		jobSettings: s,
	}
	// A placeholder source validates the remaining settings.
	if _, err := j.newStep(port.SourceFunc[I](func(context.Context) (I, error) {
		var zero I
		return zero, port.ErrNoMoreItems
	})); err != nil {
		return nil, err
	}
	return j, nil
}

// JobName implements port.Job.
func (j *ChunkJob[I, O]) JobName() string {
	return j.name
}

// StepName returns the name of the job's step.
func (j *ChunkJob[I, O]) StepName() string {
	return j.stepName
}

// Run implements port.Job. It opens a new source, runs the step once and returns its result.
// A source that cannot be opened fails the invocation with zeroed stats.
func (j *ChunkJob[I, O]) Run(ctx context.Context, execution *model.JobExecution) (model.RunResult, error) {
	src, err := j.newSource(ctx)
	if err != nil {
		openErr := exception.NewBatchError("reader", fmt.Sprintf("failed to create source of job '%s'", j.name), err, false, false)
		return model.RunResult{Status: model.RunStatusFailed}, openErr
	}

	step, err := j.newStep(src)
	if err != nil {
		return model.RunResult{Status: model.RunStatusFailed}, err
	}
	if execution != nil {
		logger.Debugf("Job '%s' (Execution ID: %s) is running step '%s'.", j.name, execution.ID, j.stepName)
	}
	return step.Run(ctx)
}

func (j *ChunkJob[I, O]) newStep(src port.Source[I]) (*item.ChunkStep[I, O], error) {
	listeners := make(port.Listeners, 0, len(j.listeners)+1)
	if j.auditSink != nil {
		listeners = append(listeners, audit.NewTelemetryListener(j.auditSink))
	}
	listeners = append(listeners, j.listeners...)

	opts := []item.Option{
		item.WithJobName(j.name),
		item.WithChunkSize(j.chunkSize),
		item.WithFaultPolicy(j.faultPolicy),
		item.WithRetryPolicy(j.retryPolicy),
		item.WithListeners(listeners...),
	}
	if j.metricRecorder != nil {
		opts = append(opts, item.WithMetricRecorder(j.metricRecorder))
	}
	if j.tracer != nil {
		opts = append(opts, item.WithTracer(j.tracer))
	}
	return item.NewChunkStep[I, O](j.stepName, src, j.transformer, j.sink, opts...)
}

var _ port.Job = (*ChunkJob[any, any])(nil)
