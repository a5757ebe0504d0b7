package migration

import (
	"context"
	"fmt"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Target describes one migration run.
type Target struct {
	// DBRef is the name of the database connection under adapter.database.
	DBRef string
	// FS holds the migration files. Nil means FrameworkFS.
	FS fs.FS
	// Dir is the directory inside FS. Empty means the database type.
	Dir string
	// Table is the migration history table. Empty means FrameworkMigrationsTable.
	Table string
	// Command is "up" (default) or "down".
	Command string
}

// RunnerParams are the Fx dependencies of NewRunner.
type RunnerParams struct {
	fx.In
	Cfg       *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

// Runner migrates named connections. The pooled connection is re-established before and
// after each run so that later users never see a pool closed by golang-migrate.
type Runner struct {
	cfg       *config.Config
	providers map[string]database.DBProvider
}

// NewRunner creates a Runner.
func NewRunner(p RunnerParams) *Runner {
	providers := make(map[string]database.DBProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &Runner{cfg: p.Cfg, providers: providers}
}

// Run executes one migration target.
func (r *Runner) Run(ctx context.Context, target Target) error {
	if target.DBRef == "" {
		return exception.NewBatchErrorf("migration", "migration target requires a database reference")
	}
	dbConfig, err := gormadapter.DecodeDatabaseConfig(r.cfg, target.DBRef)
	if err != nil {
		return exception.NewBatchError("migration", "failed to read database configuration", err, false, false)
	}
	provider, ok := r.providers[dbConfig.Type]
	if !ok && dbConfig.Type == "redshift" {
		provider, ok = r.providers["postgres"]
	}
	if !ok {
		return exception.NewBatchErrorf("migration", "DBProvider for type '%s' not found", dbConfig.Type)
	}

	conn, err := provider.ForceReconnect(target.DBRef)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("failed to connect '%s' before migration", target.DBRef), err, false, false)
	}

	fsys := target.FS
	if fsys == nil {
		fsys = FrameworkFS()
	}
	dir := target.Dir
	if dir == "" {
		dir = conn.Type()
	}
	table := target.Table
	if table == "" {
		table = FrameworkMigrationsTable
	}
	command := target.Command
	if command == "" {
		command = CommandUp
	}

	runErr := NewMigrator(conn).Run(ctx, fsys, dir, table, command)

	if _, err := provider.ForceReconnect(target.DBRef); err != nil {
		if runErr != nil {
			logger.Errorf("Failed to reconnect '%s' after failed migration: %v", target.DBRef, err)
			return exception.NewBatchError("migration", fmt.Sprintf("migration '%s' of '%s' failed", command, target.DBRef), runErr, false, false)
		}
		return exception.NewBatchError("migration", fmt.Sprintf("failed to reconnect '%s' after migration", target.DBRef), err, false, false)
	}
	if runErr != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("migration '%s' of '%s' failed", command, target.DBRef), runErr, false, false)
	}
	return nil
}

// Module provides the Runner.
var Module = fx.Provide(NewRunner)
