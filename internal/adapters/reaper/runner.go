// Package reaper provides adapters for running the job log reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/data"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the cleanup loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Clock  service.OrgClock
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo      core.RunReaperRepository
	Metrics   statsd.Sink
	OnDeleted func(ctx context.Context)
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper: reaper,
		logger: opts.Logger,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireReaperService wires up all dependencies for the reaper service.
func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRunRepo(opts.DB, data.RepoConfig{TimeProvider: opts.Clock.TimeProvider})
	}

	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:      repo,
		Config:    opts.Config,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
		OnDeleted: opts.OnDeleted,
	})
}

// Service exposes the wrapped reaper, e.g. for on-demand purges.
func (r *Runner) Service() *service.ReaperService {
	return r.reaper
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
