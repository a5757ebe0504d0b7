package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
// Step-level series are labelled with the job name carried by the context.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	pushURL     string
	pushJobName string

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepProcessCount    *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec

	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// PrometheusOption configures a PrometheusRecorder.
type PrometheusOption func(*PrometheusRecorder)

// WithPushgateway pushes the registry to a Pushgateway at the end of every job.
func WithPushgateway(url, jobName string) PrometheusOption {
	return func(r *PrometheusRecorder) {
		r.pushURL = url
		r.pushJobName = jobName
	}
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() PrometheusOption {
	return func(r *PrometheusRecorder) {
		r.registry.MustRegister(collectors.NewGoCollector())
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder(opts ...PrometheusOption) *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of chunk step runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of chunk step runs by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"job_name", "step_name"}),
		stepProcessCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_process_total",
			Help: "Total items transformed by step.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"job_name", "step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"job_name", "step_name"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total transform retries by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of engine operations such as sink writes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "step_name"}),
	}

	r.registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepProcessCount,
		r.stepWriteCount,
		r.stepCommitCount,
		r.itemSkipCounter,
		r.itemRetryCounter,
		r.operationDurationSeconds,
	)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pushGroupingLabel keys the Pushgateway group of one batch job.
const pushGroupingLabel = "batch_job"

// Registry returns the Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
}

// RecordJobEnd records the final status and duration of a JobExecution, then pushes
// to the Pushgateway when one is configured.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.StartTime != nil && execution.EndTime != nil {
		duration := execution.EndTime.Sub(*execution.StartTime).Seconds()
		r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String()).Observe(duration)
		logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
	}
	if r.pushURL != "" {
		pusher := push.New(r.pushURL, r.pushJobName).Gatherer(r.registry).Grouping(pushGroupingLabel, execution.JobName)
		if err := pusher.PushContext(ctx); err != nil {
			logger.Warnf("Metrics: failed to push metrics of job '%s' to the Pushgateway: %v", execution.JobName, err)
		}
	}
}

// RecordStepStart records the start of a chunk step run.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, stepName string) {
	r.stepStatusCounter.WithLabelValues(metrics.JobNameFromContext(ctx), stepName, "STARTED").Inc()
}

// RecordStepEnd records the outcome and duration of a chunk step run.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, stepName string, result model.RunResult, duration time.Duration) {
	jobName := metrics.JobNameFromContext(ctx)
	r.stepStatusCounter.WithLabelValues(jobName, stepName, result.Status.String()).Inc()
	r.stepDurationSeconds.WithLabelValues(jobName, stepName, result.Status.String()).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.stepReadCount.WithLabelValues(metrics.JobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.stepProcessCount.WithLabelValues(metrics.JobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(metrics.JobNameFromContext(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(metrics.JobNameFromContext(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(metrics.JobNameFromContext(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.stepCommitCount.WithLabelValues(metrics.JobNameFromContext(ctx), stepName).Inc()
}

// RecordDuration observes duration under the "operation" label; the "step" tag becomes step_name.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["step"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
