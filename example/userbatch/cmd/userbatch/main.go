package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tigerroll/chunkbatch/example/userbatch/internal/app"
	"github.com/tigerroll/chunkbatch/example/userbatch/internal/job"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed all:resources/migrations
var embeddedMigrations embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFilePath string

	root := &cobra.Command{
		Use:           "userbatch",
		Short:         "Chunk-oriented user import and export jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFilePath, "env-file", envOr("ENV_FILE_PATH", ".env"), "Path of the .env file")

	options := func(input *job.Input) (app.Options, error) {
		migrations, err := fs.Sub(embeddedMigrations, "resources/migrations")
		if err != nil {
			return app.Options{}, err
		}
		return app.Options{
			EnvFilePath:    envFilePath,
			EmbeddedConfig: config.EmbeddedConfig(embeddedConfig),
			MigrationsFS:   migrations,
			Input:          input,
		}, nil
	}

	root.AddCommand(newRunCommand(options), newJobsCommand(options), newMigrateCommand(options))
	return root
}

type optionsFunc func(input *job.Input) (app.Options, error)

func newRunCommand(options optionsFunc) *cobra.Command {
	var (
		jobName string
		input   string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options(&job.Input{Path: input})
			if err != nil {
				return err
			}
			execution, err := app.RunJob(cmd.Context(), opts, jobName, migrate)
			if execution != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", execution.JobName, execution.Status, execution.Stats)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&jobName, "job", "j", "", "Name of the job (defaults to chunkbatch.batch.job_name)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON input file of the user jobs")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply migrations before running the job")
	return cmd
}

func newJobsCommand(options optionsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options(nil)
			if err != nil {
				return err
			}
			names, err := app.ListJobs(cmd.Context(), opts)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newMigrateCommand(options optionsFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the framework and application migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			opts, err := options(nil)
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), opts, command)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
