// Package tracing provides a listener that annotates the current step span with engine events.
package tracing

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// TracingListener records chunk commits and skips as span events and aborts as span errors.
// It relies on the engine emitting events with the step span in ctx.
type TracingListener struct {
	tracer metrics.Tracer
}

// NewTracingListener creates a TracingListener.
func NewTracingListener(tracer metrics.Tracer) *TracingListener {
	return &TracingListener{tracer: tracer}
}

// Handle implements port.Listener.
func (l *TracingListener) Handle(ctx context.Context, event port.Event) {
	meta := event.Meta()
	switch e := event.(type) {
	case port.ChunkCommitted:
		l.tracer.RecordEvent(ctx, "chunk_committed", map[string]interface{}{
			"count":   e.Count,
			"total":   meta.Stats.Total,
			"success": meta.Stats.Success,
			"failure": meta.Stats.Failure,
		})
	case port.ItemSkipped:
		attrs := map[string]interface{}{"total": meta.Stats.Total, "failure": meta.Stats.Failure}
		if e.Err != nil {
			attrs["error"] = e.Err.Error()
		}
		l.tracer.RecordEvent(ctx, "item_skipped", attrs)
	case port.ChunkError:
		l.tracer.RecordError(ctx, "chunk", e.Err)
	}
}

var _ port.Listener = (*TracingListener)(nil)
