// Package sink provides port.Sink implementations: transactional GORM writes, parquet
// part files on object storage and an in-memory collector.
package sink

import (
	"context"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// CollectingSink keeps every committed chunk in memory. It backs dry runs and tests.
type CollectingSink[T any] struct {
	mu     sync.Mutex
	chunks [][]T
}

// NewCollectingSink creates an empty CollectingSink.
func NewCollectingSink[T any]() *CollectingSink[T] {
	return &CollectingSink[T]{}
}

// WriteAll stores a copy of items as one chunk.
func (s *CollectingSink[T]) WriteAll(ctx context.Context, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]T(nil), items...))
	return nil
}

// Chunks returns a copy of the committed chunks in commit order.
func (s *CollectingSink[T]) Chunks() [][]T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]T, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = append([]T(nil), c...)
	}
	return out
}

// Items returns all committed items in commit order.
func (s *CollectingSink[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

// Reset drops everything collected so far.
func (s *CollectingSink[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}

var _ port.Sink[any] = (*CollectingSink[any])(nil)
