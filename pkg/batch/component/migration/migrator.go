// Package migration applies versioned SQL migrations with golang-migrate.
// The framework tables (batch_job_execution, batch_log) ship embedded per dialect.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Migration history tables.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Commands accepted by Migrator.Run.
const (
	CommandUp   = "up"
	CommandDown = "down"
)

//go:embed resource
var frameworkMigrations embed.FS

// FrameworkFS returns the embedded framework migrations, one directory per database type.
func FrameworkFS() fs.FS {
	sub, err := fs.Sub(frameworkMigrations, "resource")
	if err != nil {
		// The embed directive guarantees the directory.
		panic(err)
	}
	return sub
}

// Migrator runs migrations against one database connection.
type Migrator struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB, table string) (migratedb.Driver, error) {
	switch m.conn.Type() {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

// instance builds a migrate instance. Closing it closes the connection's pool, so the
// caller reconnects afterwards.
func (m *Migrator) instance(fsys fs.FS, dir, table string) (*migrate.Migrate, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", dir, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB, table)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mi, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mi, nil
}

// Run applies command ("up" or "down") with the migrations found in fsys/dir.
// An already up-to-date schema is not an error.
func (m *Migrator) Run(ctx context.Context, fsys fs.FS, dir, table, command string) error {
	logger.Infof("Executing migration '%s' on '%s' (path: %s, table: %s)", command, m.conn.Name(), dir, table)

	mi, err := m.instance(fsys, dir, table)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := mi.Close()
		if srcErr != nil || dbErr != nil {
			logger.Debugf("Closing migrate instance for '%s': source=%v, database=%v", m.conn.Name(), srcErr, dbErr)
		}
	}()

	// Stop the migration between two versions when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mi.GracefulStop <- true
		case <-done:
		}
	}()

	switch command {
	case CommandUp:
		err = mi.Up()
	case CommandDown:
		err = mi.Down()
	default:
		return fmt.Errorf("unsupported migration command: %s", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, verErr := mi.Version()
		if verErr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty=%t)", command, version, dirty)
		}
		return fmt.Errorf("migration '%s' failed (DB: %s, path: %s): %w", command, m.conn.Type(), dir, err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Infof("Migration '%s' on '%s': no change.", command, m.conn.Name())
		return nil
	}
	logger.Infof("Migration '%s' on '%s' completed successfully.", command, m.conn.Name())
	return nil
}
