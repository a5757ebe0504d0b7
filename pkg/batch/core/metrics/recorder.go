// Package metrics defines the observability abstractions used by the engine and orchestrator.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
// It lets the engine report to different backends (e.g., Prometheus, OpenTelemetry Metrics).
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)

	// RecordJobEnd records the end of a JobExecution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records the start of a chunk step run.
	RecordStepStart(ctx context.Context, stepName string)

	// RecordStepEnd records the end of a chunk step run.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step.
	// result: The final status and stats of the run.
	// duration: The wall time of the run.
	RecordStepEnd(ctx context.Context, stepName string, result model.RunResult, duration time.Duration)

	// RecordItemRead records the successful reading of an item.
	RecordItemRead(ctx context.Context, stepName string)

	// RecordItemProcess records the successful transformation of an item.
	RecordItemProcess(ctx context.Context, stepName string)

	// RecordItemWrite records the successful writing of items.
	RecordItemWrite(ctx context.Context, stepName string, count int)

	// RecordItemSkip records the skipping of an item.
	//
	// reason: A string indicating the reason for skipping (e.g., error type).
	RecordItemSkip(ctx context.Context, stepName string, reason string)

	// RecordItemRetry records the retry of an item transformation.
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	// RecordChunkCommit records the commitment of a chunk.
	RecordChunkCommit(ctx context.Context, stepName string, count int)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "sink_write").
	// tags: Additional attributes, e.g. `{"step": "createUsersStep"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
