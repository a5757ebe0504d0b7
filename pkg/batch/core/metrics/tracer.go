package metrics

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing.
// It integrates with tracing systems like OpenTelemetry to visualize job and step runs.
type Tracer interface {
	// StartJobSpan starts a span for a JobExecution.
	//
	// Returns: A context with the new span set, and a function to end the span.
	//          It is recommended to call the returned function in a defer statement.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())

	// StartStepSpan starts a span for one chunk step run, typically as a child of the job span.
	StartStepSpan(ctx context.Context, jobName, stepName string) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: The component where the error occurred (e.g., "reader", "processor", "writer").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	//
	// attributes: e.g. `map[string]interface{}{"count": 10}`
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
