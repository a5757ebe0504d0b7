// Package tx provides the transaction abstraction used by sinks that must persist
// a chunk as one unit.
package tx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Tx represents an ongoing database transaction.
// Writes through a Tx become visible only after TransactionManager.Commit.
type Tx interface {
	database.DBExecutor
}

// TransactionManager manages the lifecycle of database transactions.
type TransactionManager interface {
	// Begin starts a new database transaction.
	// opts: Optional transaction options (isolation level, read-only flag).
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the specified transaction.
	Commit(tx Tx) error
	// Rollback rolls back the specified transaction.
	Rollback(tx Tx) error
}

// TransactionManagerFactory creates TransactionManagers bound to one connection.
type TransactionManagerFactory interface {
	NewTransactionManager(conn database.DBConnection) TransactionManager
}

type txKey struct{}

// WithTx returns a copy of ctx carrying t.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction carried by ctx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok
}

// Run executes fn inside a new transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func Run(ctx context.Context, tm TransactionManager, fn func(ctx context.Context, t Tx) error) (err error) {
	t, err := tm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tm.Rollback(t); rbErr != nil {
				logger.Errorf("Failed to roll back transaction after panic: %v", rbErr)
			}
			panic(r)
		}
	}()

	if err = fn(WithTx(ctx, t), t); err != nil {
		if rbErr := tm.Rollback(t); rbErr != nil {
			logger.Errorf("Failed to roll back transaction: %v (original error: %v)", rbErr, err)
		}
		return err
	}
	if err = tm.Commit(t); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
