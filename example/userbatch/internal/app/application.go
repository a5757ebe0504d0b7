// Package app assembles the userbatch application from the framework modules.
package app

import (
	"context"
	"io/fs"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/userbatch/internal/job"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/migration"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/audit"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Options are the inputs shared by every command.
type Options struct {
	// EnvFilePath is the .env file loaded before the configuration. Empty skips it.
	EnvFilePath string
	// EmbeddedConfig is the application YAML.
	EmbeddedConfig config.EmbeddedConfig
	// MigrationsFS holds the application migrations, one directory per database type.
	MigrationsFS fs.FS
	// Input feeds the JSON-fed jobs.
	Input *job.Input
	// StopTimeout bounds the shutdown of the application. Zero means 30 seconds.
	StopTimeout time.Duration
}

// ErrJobFailed is returned by RunJob when the job finished as FAILED.
var ErrJobFailed = errors.New("job failed")

// Modules returns the framework and job modules of the application.
func Modules(opts Options) fx.Option {
	input := opts.Input
	if input == nil {
		input = &job.Input{}
	}
	return fx.Options(
		fx.Supply(
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
			input,
		),
		logger.Module,
		config.Module,
		metrics.Module,
		inframetrics.Module,

		gormadapter.Module,
		sqlite.Module,
		mysql.Module,
		postgres.Module,
		storage.Module,
		local.Module,
		gcs.Module,

		audit.Module,
		repository.Module,
		listener.Module,
		runner.Module,
		usecase.Module,
		migration.Module,

		job.Module,
	)
}

func (o Options) stopTimeout() time.Duration {
	if o.StopTimeout > 0 {
		return o.StopTimeout
	}
	return 30 * time.Second
}

// withApp starts an application built from Modules plus extra, calls fn, and stops it.
func withApp(ctx context.Context, opts Options, fn func(ctx context.Context) error, extra ...fx.Option) (err error) {
	app := fx.New(Modules(opts), fx.Options(extra...))
	if err := app.Err(); err != nil {
		return errors.Wrap(err, "failed to build application")
	}
	if err := app.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start application")
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), opts.stopTimeout())
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Errorf("Failed to stop application: %v", stopErr)
			if err == nil {
				err = stopErr
			}
		}
	}()
	return fn(ctx)
}

// RunJob launches jobName and waits for it to finish. It returns the finished execution;
// a FAILED execution comes with an error wrapping ErrJobFailed.
func RunJob(ctx context.Context, opts Options, jobName string, migrate bool) (*model.JobExecution, error) {
	var (
		launcher  *usecase.SimpleJobLauncher
		cfg       *config.Config
		migrator  *migration.Runner
		execution *model.JobExecution
	)
	err := withApp(ctx, opts, func(ctx context.Context) error {
		if jobName == "" {
			jobName = cfg.ChunkBatch.Batch.JobName
		}
		if jobName == "" {
			return errors.New("no job name given; use --job or chunkbatch.batch.job_name")
		}
		if migrate {
			if err := runMigrations(ctx, cfg, migrator, opts.MigrationsFS, migration.CommandUp); err != nil {
				return err
			}
		}

		logger.Infof("Starting job '%s'...", jobName)
		var runErr error
		execution, runErr = launcher.Launch(ctx, jobName)
		if execution == nil {
			return errors.Wrapf(runErr, "failed to launch job '%s'", jobName)
		}
		logger.Infof("Job '%s' (Execution ID: %s) finished with status: %s (%s)", jobName, execution.ID, execution.Status, execution.Stats)
		if execution.Status != model.JobStatusCompleted {
			failed := errors.Wrapf(ErrJobFailed, "job '%s' finished with status %s", jobName, execution.Status)
			if runErr != nil {
				return errors.Join(failed, runErr)
			}
			return failed
		}
		return nil
	}, fx.Populate(&launcher, &cfg, &migrator))
	return execution, err
}

// ListJobs returns the names of the registered jobs.
func ListJobs(ctx context.Context, opts Options) ([]string, error) {
	var registry *runner.Registry
	var names []string
	err := withApp(ctx, opts, func(ctx context.Context) error {
		names = registry.Names()
		return nil
	}, fx.Populate(&registry))
	return names, err
}

// Migrate applies (or reverts) the framework and application migrations.
func Migrate(ctx context.Context, opts Options, command string) error {
	var (
		cfg      *config.Config
		migrator *migration.Runner
	)
	return withApp(ctx, opts, func(ctx context.Context) error {
		return runMigrations(ctx, cfg, migrator, opts.MigrationsFS, command)
	}, fx.Populate(&cfg, &migrator))
}

// runMigrations migrates the framework tables on every connection the repository and the
// audit sink use, then the application tables on the workload connection.
func runMigrations(ctx context.Context, cfg *config.Config, migrator *migration.Runner, appFS fs.FS, command string) error {
	infra := cfg.ChunkBatch.Infrastructure
	var frameworkRefs []string
	if infra.JobRepositoryType == repository.TypeSQL {
		frameworkRefs = append(frameworkRefs, infra.JobRepositoryDBRef)
	}
	if infra.AuditSinkType == audit.SinkTypeGorm && (len(frameworkRefs) == 0 || frameworkRefs[0] != infra.AuditDBRef) {
		frameworkRefs = append(frameworkRefs, infra.AuditDBRef)
	}
	for _, ref := range frameworkRefs {
		logger.Infof("Running framework migrations (%s) on '%s'.", command, ref)
		if err := migrator.Run(ctx, migration.Target{DBRef: ref, Command: command}); err != nil {
			return err
		}
	}

	if appFS == nil {
		return nil
	}
	logger.Infof("Running application migrations (%s) on '%s'.", command, job.WorkloadDB)
	return migrator.Run(ctx, migration.Target{
		DBRef:   job.WorkloadDB,
		FS:      appFS,
		Table:   migration.AppMigrationsTable,
		Command: command,
	})
}
