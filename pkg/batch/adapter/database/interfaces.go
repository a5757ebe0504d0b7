// Package database defines the database connection abstractions used by repositories,
// sources, sinks and the audit store.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// Write operations accepted by DBExecutor.ExecuteUpdate.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// DBExecutor defines the write operations shared by a connection and a transaction.
type DBExecutor interface {
	// ExecuteUpdate performs a write operation (CREATE, UPDATE, DELETE).
	//
	// model: A pointer to an entity, or a slice of entities for CREATE.
	// tableName: The target table. Empty lets the model decide.
	// query: WHERE conditions for UPDATE and DELETE, combined with AND.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
	// With no updateColumns a conflict is ignored (DO NOTHING).
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
}

// DBQuerier defines read operations executed outside of a managed transaction.
type DBQuerier interface {
	// ExecuteQuery finds all records matching query into target.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced finds records with optional ordering and paging.
	//
	// orderBy: e.g. "id desc". Empty means unordered.
	// limit: The maximum number of records. 0 means no limit.
	// offset: The number of records to skip.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit, offset int) error

	// Count counts the number of records matching the query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// Pluck retrieves the distinct values of one column into target.
	Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error
}

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Type(), Name(), Close()
	DBExecutor
	DBQuerier

	// RefreshConnection checks the connection pool, e.g. after a migration.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB, for migration tools and raw SQL access.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a named database connection.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveDBConnection resolves a database connection by name, reconnecting when
	// the pooled connection no longer answers.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "postgres", "mysql").
	Type() string
}

// DBProviderGroup is the Fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
