package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder is an implementation of metrics.MetricRecorder using the OpenTelemetry metrics API.
type OpenTelemetryRecorder struct {
	jobs          otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	steps         otelmetric.Int64Counter
	stepDuration  otelmetric.Float64Histogram
	itemsRead     otelmetric.Int64Counter
	itemsProcess  otelmetric.Int64Counter
	itemsWritten  otelmetric.Int64Counter
	itemsSkipped  otelmetric.Int64Counter
	itemRetries   otelmetric.Int64Counter
	chunkCommits  otelmetric.Int64Counter
	operationTime otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter of mp.
func NewOpenTelemetryRecorder(mp otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}

	var err error
	counter := func(name, desc string) otelmetric.Int64Counter {
		if err != nil {
			return nil
		}
		var c otelmetric.Int64Counter
		c, err = meter.Int64Counter(name, otelmetric.WithDescription(desc))
		return c
	}
	histogram := func(name, desc string) otelmetric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h otelmetric.Float64Histogram
		h, err = meter.Float64Histogram(name, otelmetric.WithDescription(desc), otelmetric.WithUnit("s"))
		return h
	}

	r.jobs = counter("batch.job.status", "Batch job executions by status.")
	r.jobDuration = histogram("batch.job.duration", "Duration of batch job executions.")
	r.steps = counter("batch.step.status", "Chunk step runs by status.")
	r.stepDuration = histogram("batch.step.duration", "Duration of chunk step runs.")
	r.itemsRead = counter("batch.step.items.read", "Items read.")
	r.itemsProcess = counter("batch.step.items.processed", "Items transformed.")
	r.itemsWritten = counter("batch.step.items.written", "Items written.")
	r.itemsSkipped = counter("batch.step.items.skipped", "Items skipped.")
	r.itemRetries = counter("batch.step.items.retried", "Transform retries.")
	r.chunkCommits = counter("batch.step.chunks.committed", "Chunks committed.")
	r.operationTime = histogram("batch.operation.duration", "Duration of engine operations.")
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
	}
	return r, nil
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) otelmetric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", metrics.JobNameFromContext(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return otelmetric.WithAttributes(attrs...)
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobs.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	if execution.StartTime != nil && execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(*execution.StartTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, stepName string) {
	r.steps.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("status", "STARTED")))
}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, stepName string, result model.RunResult, duration time.Duration) {
	attrs := stepAttrs(ctx, stepName, attribute.String("status", result.Status.String()))
	r.steps.Add(ctx, 1, attrs)
	r.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.itemsRead.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.itemsProcess.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemsSkipped.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetries.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommits.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationTime.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

// NewMeterProvider builds an SDK MeterProvider with a periodic OTLP exporter.
func NewMeterProvider(ctx context.Context, cfg config.OTelConfig) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Protocol {
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(newResource(cfg)),
	), nil
}

// CompositeRecorder fans every call out to several recorders.
type CompositeRecorder []metrics.MetricRecorder

func (c CompositeRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c {
		r.RecordJobStart(ctx, execution)
	}
}

func (c CompositeRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c {
		r.RecordJobEnd(ctx, execution)
	}
}

func (c CompositeRecorder) RecordStepStart(ctx context.Context, stepName string) {
	for _, r := range c {
		r.RecordStepStart(ctx, stepName)
	}
}

func (c CompositeRecorder) RecordStepEnd(ctx context.Context, stepName string, result model.RunResult, duration time.Duration) {
	for _, r := range c {
		r.RecordStepEnd(ctx, stepName, result, duration)
	}
}

func (c CompositeRecorder) RecordItemRead(ctx context.Context, stepName string) {
	for _, r := range c {
		r.RecordItemRead(ctx, stepName)
	}
}

func (c CompositeRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	for _, r := range c {
		r.RecordItemProcess(ctx, stepName)
	}
}

func (c CompositeRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	for _, r := range c {
		r.RecordItemWrite(ctx, stepName, count)
	}
}

func (c CompositeRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	for _, r := range c {
		r.RecordItemSkip(ctx, stepName, reason)
	}
}

func (c CompositeRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	for _, r := range c {
		r.RecordItemRetry(ctx, stepName, reason)
	}
}

func (c CompositeRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	for _, r := range c {
		r.RecordChunkCommit(ctx, stepName, count)
	}
}

func (c CompositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var (
	_ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
	_ metrics.MetricRecorder = CompositeRecorder(nil)
)
