// Package port defines the core interfaces (ports) for the batch engine.
// These interfaces abstract the engine's collaborators, allowing for flexible
// implementation and testing.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// ErrNoMoreItems is returned by a Source once its input is exhausted. It is not a failure.
var ErrNoMoreItems = errors.New("no more items to read")

// Source supplies raw items one at a time.
// I is the type of item to be read.
type Source[I any] interface {
	// Read reads the next item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   I: The next item.
	//   error: ErrNoMoreItems if no more items are available, or another error if reading fails.
	Read(ctx context.Context) (I, error)
}

// Transformer maps one raw item to one output item.
// I is the type of input item, O is the type of output item.
type Transformer[I, O any] interface {
	// Transform processes an input item and returns an output item.
	// A returned error is treated as a TransformError for that item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The input item to be processed.
	//
	// Returns:
	//   O: The processed item.
	//   error: An error if the item is invalid.
	Transform(ctx context.Context, item I) (O, error)
}

// Sink durably persists a chunk of items as one unit.
// Either all items of the chunk are persisted or none are.
type Sink[O any] interface {
	// WriteAll persists a chunk of items.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   items: The chunk to be written, never longer than the configured chunk size.
	//
	// Returns:
	//   error: An error if the chunk could not be persisted.
	WriteAll(ctx context.Context, items []O) error
}

// AuditSink durably appends audit records.
type AuditSink interface {
	// Append stores one record. A returned error never affects the run.
	Append(ctx context.Context, record model.AuditRecord) error
}

// Opener is implemented by sources and sinks that acquire resources before a run.
type Opener interface {
	Open(ctx context.Context) error
}

// Closer is implemented by sources and sinks that release resources after a run.
type Closer interface {
	Close(ctx context.Context) error
}

// Job is a named, runnable unit.
type Job interface {
	// JobName returns the logical name of the job.
	JobName() string
	// Run executes the job once. The execution is owned by the caller and must not
	// be transitioned by the job.
	Run(ctx context.Context, execution *model.JobExecution) (model.RunResult, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[I any] func(ctx context.Context) (I, error)

// Read calls f(ctx).
func (f SourceFunc[I]) Read(ctx context.Context) (I, error) {
	return f(ctx)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc[I, O any] func(ctx context.Context, item I) (O, error)

// Transform calls f(ctx, item).
func (f TransformerFunc[I, O]) Transform(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[O any] func(ctx context.Context, items []O) error

// WriteAll calls f(ctx, items).
func (f SinkFunc[O]) WriteAll(ctx context.Context, items []O) error {
	return f(ctx, items)
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, record model.AuditRecord) error

// Append calls f(ctx, record).
func (f AuditSinkFunc) Append(ctx context.Context, record model.AuditRecord) error {
	return f(ctx, record)
}

// Verify interfaces
var (
	_ Source[any]           = SourceFunc[any](nil)
	_ Transformer[any, any] = TransformerFunc[any, any](nil)
	_ Sink[any]             = SinkFunc[any](nil)
	_ AuditSink             = AuditSinkFunc(nil)
)
