package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	tracker "github.com/jdziat/durable-cmd-tracker"
	"github.com/jdziat/durable-cmd-tracker/internal/config"
	"github.com/jdziat/durable-cmd-tracker/internal/logger"
	"github.com/jdziat/durable-cmd-tracker/pkg/coordinator"
	"github.com/jdziat/durable-cmd-tracker/pkg/executor"
	"github.com/jdziat/durable-cmd-tracker/pkg/jobmaster"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
	"github.com/jdziat/durable-cmd-tracker/pkg/stats"
	"github.com/jdziat/durable-cmd-tracker/pkg/storage"
)

type globalFlags struct {
	configPath string
	logLevel   string
	dsn        string
}

// app is the state shared by subcommands once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	a := &app{}

	root := &cobra.Command{
		Use:   "cmdtracker",
		Short: "Run and track file-system commands as durable jobs",
		Long: `cmdtracker expands persist and replicate commands into one job per
affected path, submits them to the embedded job master and tracks every
attempt until the command finishes.

Examples:
  cmdtracker run -f commands.yaml      # Run commands and print the results
  cmdtracker serve                     # Start the HTTP API and scheduler
  cmdtracker show <command-id>         # Show a recorded command run
  cmdtracker status <job-id>           # Show the task tree of a job`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "Database DSN (overrides config)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newCancelCmd(a))
	return root
}

func (a *app) load(flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.dsn != "" {
		cfg.Database.DSN = flags.dsn
	}

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(log)

	a.cfg = cfg
	a.logger = log
	a.closer = closer
	return nil
}

// open wires a tracker from the loaded configuration.
func (a *app) open(ctx context.Context, extra ...tracker.Option) (*tracker.Tracker, error) {
	cfg := a.cfg
	opts := []tracker.Option{
		tracker.WithLogger(a.logger),
		tracker.WithExecutor(&executor.Local{
			CacheRoot:   cfg.Executor.CacheRoot,
			ReplicaRoot: cfg.Executor.ReplicaRoot,
			UfsRoot:     cfg.Executor.UfsRoot,
			BlockSize:   cfg.Executor.BlockSize,
			Logger:      a.logger,
		}),
		tracker.WithWorkers(cfg.JobMaster.Workers),
		tracker.WithWorkerOptions(
			jobmaster.Concurrency(cfg.JobMaster.Concurrency),
			jobmaster.Maintenance(0, 0, cfg.JobMaster.Retention),
		),
		tracker.WithMasterOptions(jobmaster.WithMaxRetries(cfg.JobMaster.MaxRetries)),
		tracker.WithCoordinatorOptions(
			coordinator.WithMaxConcurrentAttempts(cfg.Coordinator.MaxConcurrentAttempts),
			coordinator.WithPollInterval(cfg.Coordinator.PollInterval),
			coordinator.WithSubmitRate(cfg.Coordinator.SubmitRate, cfg.Coordinator.SubmitBurst),
			coordinator.WithSubmitRetry(submitRetry(cfg.Coordinator.Retry)),
		),
	}
	// SQLite keeps its single-connection pool.
	if storage.Dialector(cfg.Database.DSN).Name() != "sqlite" {
		opts = append(opts, tracker.WithPool(
			storage.MaxOpenConns(cfg.Database.MaxOpenConns),
			storage.MaxIdleConns(cfg.Database.MaxIdleConns),
			storage.ConnMaxLifetime(cfg.Database.ConnMaxLifetime),
		))
	}
	return tracker.Open(ctx, cfg.Database.DSN, append(opts, extra...)...)
}

func submitRetry(rc config.RetryConfig) retry.Config {
	c := retry.DefaultConfig()
	c.MaxAttempts = rc.MaxAttempts
	if rc.InitialBackoff > 0 {
		c.InitialBackoff = rc.InitialBackoff
	}
	if rc.MaxBackoff > 0 {
		c.MaxBackoff = rc.MaxBackoff
	}
	return c
}

func (a *app) statsOption() tracker.Option {
	return tracker.WithStats(stats.WithRetention(a.cfg.Stats.Retention))
}
