package port

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// EventMeta is carried by every engine event.
// Stats is a snapshot copied at emission time.
type EventMeta struct {
	JobName  string
	StepName string
	Stats    model.RunStats
	Time     time.Time
}

// Event is one of StepStarted, ChunkCommitted, ItemSkipped, ChunkError or StepFinished.
// The set is closed: the unexported marker keeps other packages from adding variants.
type Event interface {
	Kind() model.EventKind
	Meta() EventMeta
	isEvent()
}

// StepStarted is emitted once, before the first item is read.
type StepStarted struct {
	EventMeta
}

// ChunkCommitted is emitted after a chunk was written successfully.
type ChunkCommitted struct {
	EventMeta
	// Count is the number of items in the committed chunk.
	Count int
}

// ItemSkipped is emitted for every item whose transformation failed under a skipping policy.
type ItemSkipped struct {
	EventMeta
	Item any
	Err  error
}

// ChunkError is emitted when the run aborts: a fatal transform failure, an exceeded skip
// limit, a failed write, a failed read or a cancelled context.
type ChunkError struct {
	EventMeta
	Err error
}

// StepFinished is always the last event of a run.
type StepFinished struct {
	EventMeta
	Status model.RunStatus
}

func (e StepStarted) Kind() model.EventKind    { return model.EventKindStepStarted }
func (e ChunkCommitted) Kind() model.EventKind { return model.EventKindChunkCommitted }
func (e ItemSkipped) Kind() model.EventKind    { return model.EventKindItemSkipped }
func (e ChunkError) Kind() model.EventKind     { return model.EventKindChunkError }
func (e StepFinished) Kind() model.EventKind   { return model.EventKindStepFinished }

func (e StepStarted) Meta() EventMeta    { return e.EventMeta }
func (e ChunkCommitted) Meta() EventMeta { return e.EventMeta }
func (e ItemSkipped) Meta() EventMeta    { return e.EventMeta }
func (e ChunkError) Meta() EventMeta     { return e.EventMeta }
func (e StepFinished) Meta() EventMeta   { return e.EventMeta }

func (StepStarted) isEvent()    {}
func (ChunkCommitted) isEvent() {}
func (ItemSkipped) isEvent()    {}
func (ChunkError) isEvent()     {}
func (StepFinished) isEvent()   {}

// Listener observes engine events. Handle is called synchronously from the engine loop
// and must not fail the run.
type Listener interface {
	Handle(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

// Handle calls f(ctx, event).
func (f ListenerFunc) Handle(ctx context.Context, event Event) {
	f(ctx, event)
}

// Listeners fans an event out to every listener in order.
type Listeners []Listener

// Handle dispatches event to each non-nil listener.
func (ls Listeners) Handle(ctx context.Context, event Event) {
	for _, l := range ls {
		if l != nil {
			l.Handle(ctx, event)
		}
	}
}

var (
	_ Event    = StepStarted{}
	_ Event    = ChunkCommitted{}
	_ Event    = ItemSkipped{}
	_ Event    = ChunkError{}
	_ Event    = StepFinished{}
	_ Listener = Listeners(nil)
	_ Listener = ListenerFunc(nil)
)
