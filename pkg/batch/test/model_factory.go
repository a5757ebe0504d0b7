package test

import (
	"context"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// NewTestJobExecution creates a JobExecution moved to the given status through valid transitions.
func NewTestJobExecution(jobName string, status model.JobStatus) *model.JobExecution {
	je := model.NewJobExecution(jobName)
	switch status {
	case model.JobStatusRunning:
		_ = je.MarkAsStarted()
	case model.JobStatusCompleted:
		_ = je.MarkAsStarted()
		_ = je.MarkAsCompleted(model.RunStats{Total: 1, Success: 1})
	case model.JobStatusFailed:
		_ = je.MarkAsStarted()
		_ = je.MarkAsFailed(model.RunStats{Total: 1, Failure: 1}, context.Canceled)
	}
	return je
}

// SliceSource returns a Source yielding items in order, then ErrNoMoreItems.
func SliceSource[T any](items ...T) port.Source[T] {
	i := 0
	return port.SourceFunc[T](func(ctx context.Context) (T, error) {
		if i >= len(items) {
			var zero T
			return zero, port.ErrNoMoreItems
		}
		i++
		return items[i-1], nil
	})
}

// EventRecorder is a port.Listener that keeps every event.
type EventRecorder struct {
	Events []port.Event
}

// Handle implements port.Listener.
func (r *EventRecorder) Handle(ctx context.Context, e port.Event) {
	r.Events = append(r.Events, e)
}

// Kinds returns the kinds of the recorded events in order.
func (r *EventRecorder) Kinds() []model.EventKind {
	kinds := make([]model.EventKind, 0, len(r.Events))
	for _, e := range r.Events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

// NewTimePtr returns a pointer to time.Time.
func NewTimePtr(t time.Time) *time.Time {
	return &t
}
