package metrics

import (
	"go.uber.org/fx"
)

// Module provides no-op fallbacks for MetricRecorder and Tracer.
// The infrastructure metrics module decorates them with real backends when enabled.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
