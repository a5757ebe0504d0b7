// Package transformer provides generic port.Transformer implementations.
package transformer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ErrInvalidItem is the cause of every error returned by a Validating transformer.
// It is registered as "ErrInvalidItem" for skippable_exceptions.
var ErrInvalidItem = errors.New("invalid item")

func init() {
	exception.RegisterErrorType("ErrInvalidItem", ErrInvalidItem)
}

// PassThrough returns every item unchanged.
type PassThrough[T any] struct{}

// NewPassThrough creates a PassThrough transformer.
func NewPassThrough[T any]() PassThrough[T] {
	return PassThrough[T]{}
}

// Transform returns item as is.
func (PassThrough[T]) Transform(ctx context.Context, item T) (T, error) {
	return item, nil
}

// Rule checks one item. A non-nil error rejects the item.
type Rule[T any] func(item T) error

// Validating applies rules in order and passes the item through when all accept it.
type Validating[T any] struct {
	name  string
	rules []Rule[T]
}

// NewValidating creates a Validating transformer.
func NewValidating[T any](name string, rules ...Rule[T]) *Validating[T] {
	return &Validating[T]{name: name, rules: rules}
}

// Transform returns item, or a skippable error wrapping ErrInvalidItem for the first
// rule that rejects it.
func (v *Validating[T]) Transform(ctx context.Context, item T) (T, error) {
	for _, rule := range v.rules {
		if err := rule(item); err != nil {
			logger.Debugf("Validating '%s': item rejected: %v", v.name, err)
			return item, exception.NewBatchError("processor",
				fmt.Sprintf("%s: %v", v.name, err),
				fmt.Errorf("%w: %v", ErrInvalidItem, err), true, false)
		}
	}
	return item, nil
}

// Map adapts a pure function to a Transformer.
func Map[I, O any](fn func(I) O) port.Transformer[I, O] {
	return port.TransformerFunc[I, O](func(ctx context.Context, item I) (O, error) {
		return fn(item), nil
	})
}

// Chain runs first, then second, on each item.
func Chain[A, B, C any](first port.Transformer[A, B], second port.Transformer[B, C]) port.Transformer[A, C] {
	return port.TransformerFunc[A, C](func(ctx context.Context, item A) (C, error) {
		mid, err := first.Transform(ctx, item)
		if err != nil {
			var zero C
			return zero, err
		}
		return second.Transform(ctx, mid)
	})
}

var (
	_ port.Transformer[any, any] = PassThrough[any]{}
	_ port.Transformer[any, any] = (*Validating[any])(nil)
)
