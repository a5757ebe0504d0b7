// Package source provides port.Source implementations: in-memory lists, JSON arrays,
// Go iterators and paged GORM queries.
package source

import (
	"context"
	"iter"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// ListSource yields the items of a slice in order.
type ListSource[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
}

// NewListSource creates a source over a copy of items.
func NewListSource[T any](items ...T) *ListSource[T] {
	return &ListSource[T]{items: append([]T(nil), items...)}
}

// Read returns the next item or port.ErrNoMoreItems.
func (s *ListSource[T]) Read(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.next >= len(s.items) {
		return zero, port.ErrNoMoreItems
	}
	item := s.items[s.next]
	s.next++
	return item, nil
}

// SeqSource adapts a Go iterator to port.Source. A non-nil error yielded by the
// iterator is returned by Read as a source failure.
type SeqSource[T any] struct {
	seq  iter.Seq2[T, error]
	next func() (T, error, bool)
	stop func()
}

// FromSeq creates a source pulling from seq. The iterator starts on Open.
func FromSeq[T any](seq iter.Seq2[T, error]) *SeqSource[T] {
	return &SeqSource[T]{seq: seq}
}

// Open starts the iterator.
func (s *SeqSource[T]) Open(ctx context.Context) error {
	s.next, s.stop = iter.Pull2(s.seq)
	return nil
}

// Read returns the next value of the iterator.
func (s *SeqSource[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if s.next == nil {
		if err := s.Open(ctx); err != nil {
			return zero, err
		}
	}
	item, err, ok := s.next()
	if !ok {
		return zero, port.ErrNoMoreItems
	}
	if err != nil {
		return zero, err
	}
	return item, nil
}

// Close stops the iterator.
func (s *SeqSource[T]) Close(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}

var (
	_ port.Source[any] = (*ListSource[any])(nil)
	_ port.Source[any] = (*SeqSource[any])(nil)
	_ port.Opener      = (*SeqSource[any])(nil)
	_ port.Closer      = (*SeqSource[any])(nil)
)
