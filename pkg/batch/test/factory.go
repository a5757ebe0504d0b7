// Package test holds helpers shared by the package tests: mocks, in-memory SQLite
// connections and sqlmock-backed connections.
package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
)

// NewSQLiteConnection opens a private in-memory SQLite database named name.
// The pool is limited to one connection so every statement sees the same database.
// The connection is closed when the test ends.
func NewSQLiteConnection(t *testing.T, name string) *gormadapter.GormDBAdapter {
	t.Helper()
	conn, err := gormadapter.Open(name, dbconfig.DatabaseConfig{
		Type:     "sqlite",
		Database: ":memory:",
		Pool:     dbconfig.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewSQLMockConnection returns a MySQL-dialect connection backed by go-sqlmock.
func NewSQLMockConnection(t *testing.T, name string) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, mock
}
