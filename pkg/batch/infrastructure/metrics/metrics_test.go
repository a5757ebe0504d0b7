package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

func finishedExecution(status model.JobStatus) *model.JobExecution {
	start := time.Now().Add(-2 * time.Second)
	end := time.Now()
	return &model.JobExecution{
		ID:        "exec-1",
		JobName:   "createUsersJob",
		Status:    status,
		Stats:     model.RunStats{Total: 5, Success: 4, Failure: 1},
		StartTime: &start,
		EndTime:   &end,
	}
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := metrics.WithJobName(context.Background(), "createUsersJob")

	r.RecordStepStart(ctx, "createUsersStep")
	r.RecordItemRead(ctx, "createUsersStep")
	r.RecordItemRead(ctx, "createUsersStep")
	r.RecordItemProcess(ctx, "createUsersStep")
	r.RecordItemWrite(ctx, "createUsersStep", 3)
	r.RecordChunkCommit(ctx, "createUsersStep", 3)
	r.RecordItemSkip(ctx, "createUsersStep", "ErrInvalidItem")
	r.RecordStepEnd(ctx, "createUsersStep", model.RunResult{Status: model.RunStatusCompleted}, time.Second)
	r.RecordJobEnd(ctx, finishedExecution(model.JobStatusCompleted))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("createUsersJob", "createUsersStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepProcessCount.WithLabelValues("createUsersJob", "createUsersStep")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("createUsersJob", "createUsersStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("createUsersJob", "createUsersStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("createUsersJob", "createUsersStep", "ErrInvalidItem")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("createUsersJob", "createUsersStep", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("createUsersJob", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDurationSeconds))

	t.Run("step labels default to unknown job", func(t *testing.T) {
		r.RecordItemRead(context.Background(), "orphanStep")
		assert.Equal(t, 1.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("unknown", "orphanStep")))
	})
}

func TestPrometheusRecorder_Pushgateway(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		paths = append(paths, req.Method+" "+req.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewPrometheusRecorder(WithPushgateway(server.URL, "chunkbatch"))
	r.RecordJobEnd(context.Background(), finishedExecution(model.JobStatusFailed))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /metrics/job/chunkbatch/batch_job/createUsersJob", paths[0])
}

func TestOpenTelemetryTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	execution := finishedExecution(model.JobStatusRunning)
	jobCtx, endJob := tracer.StartJobSpan(context.Background(), execution)
	stepCtx, endStep := tracer.StartStepSpan(jobCtx, execution.JobName, "createUsersStep")
	tracer.RecordEvent(stepCtx, "chunk_committed", map[string]interface{}{"count": 10, "step": "createUsersStep"})
	tracer.RecordError(stepCtx, "writer", errors.New("disk full"))
	endStep()
	execution.Status = model.JobStatusFailed
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	step, job := spans[0], spans[1]
	assert.Equal(t, "step createUsersStep", step.Name())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	assert.Equal(t, codes.Error, step.Status().Code)
	require.Len(t, step.Events(), 2)
	assert.Equal(t, "chunk_committed", step.Events()[0].Name)
	assert.Equal(t, "exception", step.Events()[1].Name)

	assert.Equal(t, "job createUsersJob", job.Name())
	assert.Equal(t, codes.Error, job.Status().Code)
}

func TestOpenTelemetryRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOpenTelemetryRecorder(mp)
	require.NoError(t, err)

	ctx := metrics.WithJobName(context.Background(), "createUsersJob")
	r.RecordItemRead(ctx, "createUsersStep")
	r.RecordItemRead(ctx, "createUsersStep")
	r.RecordItemWrite(ctx, "createUsersStep", 7)
	r.RecordStepEnd(ctx, "createUsersStep", model.RunResult{Status: model.RunStatusCompleted}, time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				sums[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), sums["batch.step.items.read"])
	assert.Equal(t, int64(7), sums["batch.step.items.written"])
	assert.Equal(t, int64(1), sums["batch.step.status"])
}

func TestDecorateRecorder(t *testing.T) {
	base := metrics.NewNoOpMetricRecorder()

	t.Run("disabled keeps the no-op recorder", func(t *testing.T) {
		lc := fxtest.NewLifecycle(t)
		got, err := decorateRecorder(lc, config.NewConfig(), base)
		require.NoError(t, err)
		assert.Same(t, base, got)
	})

	t.Run("prometheus enabled", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.ChunkBatch.Metrics.Prometheus.Enabled = true
		lc := fxtest.NewLifecycle(t)
		got, err := decorateRecorder(lc, cfg, base)
		require.NoError(t, err)
		require.IsType(t, &AsyncMetricRecorder{}, got)
		assert.IsType(t, &PrometheusRecorder{}, got.(*AsyncMetricRecorder).delegate)
		lc.RequireStart().RequireStop()
	})

	t.Run("unsupported otel protocol", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.ChunkBatch.Metrics.OTel.Enabled = true
		cfg.ChunkBatch.Metrics.OTel.Protocol = "udp"
		lc := fxtest.NewLifecycle(t)
		_, err := decorateRecorder(lc, cfg, base)
		assert.ErrorContains(t, err, "unsupported OTLP protocol")
	})
}

type countingRecorder struct {
	metrics.NoOpMetricRecorder
	mu    sync.Mutex
	reads map[string]int
	jobs  []string
}

func (c *countingRecorder) RecordItemRead(ctx context.Context, stepName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[metrics.JobNameFromContext(ctx)+"/"+stepName]++
}

func (c *countingRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, execution.JobName+":"+execution.Status.String())
}

func TestAsyncMetricRecorder(t *testing.T) {
	delegate := &countingRecorder{reads: map[string]int{}}
	r := NewAsyncMetricRecorder(0, delegate)

	ctx := metrics.WithJobName(context.Background(), "createUsersJob")
	for i := 0; i < 10; i++ {
		r.RecordItemRead(ctx, "createUsersStep")
	}
	execution := finishedExecution(model.JobStatusCompleted)
	r.RecordJobEnd(context.Background(), execution)
	execution.Status = model.JobStatusFailed

	r.Close()
	r.Close()

	assert.Equal(t, 10, delegate.reads["createUsersJob/createUsersStep"])
	assert.Equal(t, []string{"createUsersJob:COMPLETED"}, delegate.jobs)

	r.RecordItemRead(ctx, "createUsersStep")
	assert.Equal(t, 10, delegate.reads["createUsersJob/createUsersStep"])
}
