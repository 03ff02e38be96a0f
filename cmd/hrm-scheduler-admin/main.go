package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"
	_ "time/tzdata" // org timezone must resolve in minimal containers

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultQueryTimeout     = time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.ConfigureLogger(&cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			os.Exit(2) //nolint:forbidigo // -h prints usage and exits like other CLI tools
		}
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"list-jobs": {
			name:        "list-jobs",
			description: "List the job catalog with parameters, dependencies and schedules",
			run:         runListJobs,
		},
		"trigger": {
			name:        "trigger",
			description: "Run a job through the manual trigger pipeline",
			run:         runTrigger,
		},
		"runs": {
			name:        "runs",
			description: "List job run history",
			run:         runListRuns,
		},
		"stats": {
			name:        "stats",
			description: "Show per-job run statistics",
			run:         runStats,
		},
		"purge": {
			name:        "purge",
			description: "Delete job runs older than a number of days",
			run:         runPurge,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: hrm-scheduler-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := writef(os.Stdout, "  %-12s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
