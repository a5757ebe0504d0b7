// Package metrics provides the Prometheus and OpenTelemetry backends of the core metrics interfaces.
package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Module decorates the no-op MetricRecorder and Tracer of the core metrics module
// with the backends enabled in "chunkbatch.metrics". Recorder calls are made
// asynchronous through an AsyncMetricRecorder that is flushed on shutdown.
var Module = fx.Options(
	fx.Decorate(decorateRecorder),
	fx.Decorate(decorateTracer),
)

func decorateRecorder(lc fx.Lifecycle, cfg *config.Config, base metrics.MetricRecorder) (metrics.MetricRecorder, error) {
	mc := cfg.ChunkBatch.Metrics
	var recorders CompositeRecorder

	if mc.Prometheus.Enabled {
		opts := []PrometheusOption{WithRuntimeCollectors()}
		if mc.Prometheus.PushgatewayURL != "" {
			opts = append(opts, WithPushgateway(mc.Prometheus.PushgatewayURL, mc.Prometheus.PushJobName))
		}
		recorders = append(recorders, NewPrometheusRecorder(opts...))
		logger.Infof("Metrics: Prometheus recorder enabled (pushgateway: '%s').", mc.Prometheus.PushgatewayURL)
	}

	if mc.OTel.Enabled {
		mp, err := NewMeterProvider(context.Background(), mc.OTel)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		rec, err := NewOpenTelemetryRecorder(mp)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, rec)
		logger.Infof("Metrics: OpenTelemetry recorder enabled (%s, %s).", mc.OTel.Protocol, mc.OTel.Endpoint)
	}

	var delegate metrics.MetricRecorder
	switch len(recorders) {
	case 0:
		return base, nil
	case 1:
		delegate = recorders[0]
	default:
		delegate = recorders
	}

	async := NewAsyncMetricRecorder(cfg.ChunkBatch.Batch.MetricsAsyncBufferSize, delegate)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			async.Close()
			return nil
		},
	})
	return async, nil
}

func decorateTracer(lc fx.Lifecycle, cfg *config.Config, base metrics.Tracer) (metrics.Tracer, error) {
	oc := cfg.ChunkBatch.Metrics.OTel
	if !oc.Enabled {
		return base, nil
	}
	tp, err := NewTracerProvider(context.Background(), oc)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Metrics: OpenTelemetry tracer enabled (%s, %s).", oc.Protocol, oc.Endpoint)
	return NewOpenTelemetryTracer(tp), nil
}
