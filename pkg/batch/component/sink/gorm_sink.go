package sink

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// TxWriteFunc writes a chunk through an open transaction.
type TxWriteFunc[T any] func(ctx context.Context, t tx.Tx, items []T) error

// GormSink writes each chunk in its own transaction. The chunk is committed when every
// statement succeeds and rolled back otherwise.
type GormSink[T any] struct {
	name            string
	tm              tx.TransactionManager
	tableName       string
	conflictColumns []string
	updateColumns   []string
	upsert          bool
	write           TxWriteFunc[T]
}

// GormSinkOption configures a GormSink.
type GormSinkOption[T any] func(*GormSink[T])

// WithTable overrides the table of T.
func WithTable[T any](tableName string) GormSinkOption[T] {
	return func(s *GormSink[T]) { s.tableName = tableName }
}

// WithUpsert turns inserts into upserts on conflictColumns. With no updateColumns
// conflicting rows are left untouched.
func WithUpsert[T any](conflictColumns []string, updateColumns ...string) GormSinkOption[T] {
	return func(s *GormSink[T]) {
		s.upsert = true
		s.conflictColumns = conflictColumns
		s.updateColumns = updateColumns
	}
}

// WithTxWrite replaces the bulk insert by fn, for chunks spanning several tables or
// statements.
func WithTxWrite[T any](fn TxWriteFunc[T]) GormSinkOption[T] {
	return func(s *GormSink[T]) { s.write = fn }
}

// NewGormSink creates a sink committing through tm.
func NewGormSink[T any](name string, tm tx.TransactionManager, opts ...GormSinkOption[T]) *GormSink[T] {
	s := &GormSink[T]{name: name, tm: tm}
	for _, opt := range opts {
		opt(s)
	}
	if s.write == nil {
		s.write = s.bulkWrite
	}
	return s
}

// WriteAll persists items atomically.
func (s *GormSink[T]) WriteAll(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	err := tx.Run(ctx, s.tm, func(ctx context.Context, t tx.Tx) error {
		return s.write(ctx, t, items)
	})
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("GormSink '%s': failed to write chunk of %d items", s.name, len(items)), err, false, false)
	}
	logger.Debugf("GormSink '%s': committed %d items.", s.name, len(items))
	return nil
}

func (s *GormSink[T]) bulkWrite(ctx context.Context, t tx.Tx, items []T) error {
	rows := append([]T(nil), items...)
	if s.upsert {
		_, err := t.ExecuteUpsert(ctx, &rows, s.tableName, s.conflictColumns, s.updateColumns)
		return err
	}
	_, err := t.ExecuteUpdate(ctx, &rows, database.OperationCreate, s.tableName, nil)
	return err
}

var _ port.Sink[any] = (*GormSink[any])(nil)
