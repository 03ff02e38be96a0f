// Package scheduler provides adapters for running the cron scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	obserrors "github.com/target/hrm-scheduler/internal/observability/errors"
	"github.com/target/hrm-scheduler/internal/observability/metrics"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/service"
)

// CreatedBy is the actor recorded on scheduled runs.
const CreatedBy = "scheduler"

// Triggerer is the trigger pipeline the scheduler fires into.
type Triggerer interface {
	Trigger(ctx context.Context, req service.TriggerRequest) (*service.TriggerResponse, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Catalog  *catalog.Catalog // Required
	Trigger  Triggerer        // Required
	Location *time.Location   // Optional: defaults to UTC
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Entry describes one registered schedule.
type Entry struct {
	Job      catalog.JobName
	Schedule string
	Next     time.Time
}

// Runner fires every scheduled catalog job on its cron expression in the organisation timezone.
type Runner struct {
	cron    *cron.Cron
	trigger Triggerer
	logger  *slog.Logger
	metrics statsd.Sink
	loc     *time.Location

	mu      sync.Mutex
	baseCtx context.Context
	entries map[cron.EntryID]Entry
}

// parser accepts standard five field expressions, an optional leading seconds field and descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewRunner validates every schedule in the catalog and registers one cron entry per scheduled job.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Trigger == nil {
		return nil, errors.New("trigger is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	r := &Runner{
		trigger: opts.Trigger,
		logger:  logger,
		metrics: opts.Metrics,
		loc:     loc,
		baseCtx: context.Background(),
		entries: make(map[cron.EntryID]Entry),
	}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		cron.WithLogger(cronLogger{logger: logger}),
	)

	for _, def := range opts.Catalog.List() {
		if strings.TrimSpace(def.Schedule) == "" {
			continue
		}
		sched, err := parser.Parse(def.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", def.Schedule, def.Name, err)
		}
		name := def.Name
		id := r.cron.Schedule(sched, cron.FuncJob(func() { r.fire(r.context(), name) }))
		r.entries[id] = Entry{Job: name, Schedule: def.Schedule}
	}
	return r, nil
}

func (r *Runner) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseCtx
}

// Entries returns the registered schedules with their next fire time.
func (r *Runner) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, ce := range r.cron.Entries() {
		e, ok := r.entries[ce.ID]
		if !ok {
			continue
		}
		e.Next = ce.Next
		if e.Next.IsZero() {
			e.Next = ce.Schedule.Next(time.Now().In(r.loc))
		}
		out = append(out, e)
	}
	return out
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for in-flight jobs.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	for _, e := range r.Entries() {
		r.logger.InfoContext(ctx, "scheduled job registered", "job", e.Job, "schedule", e.Schedule, "next", e.Next)
	}
	r.logger.InfoContext(ctx, "starting scheduler", "timezone", r.loc.String(), "entries", len(r.entries))
	r.cron.Start()

	<-ctx.Done()
	r.logger.InfoContext(ctx, "scheduler stopping", "reason", ctx.Err())
	<-r.cron.Stop().Done()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// fire runs one scheduled invocation through the trigger pipeline.
func (r *Runner) fire(ctx context.Context, name catalog.JobName) {
	start := time.Now()
	resp, err := r.trigger.Trigger(ctx, service.TriggerRequest{
		JobName:     string(name),
		TriggeredBy: model.TriggeredBySystem,
		CreatedBy:   CreatedBy,
	})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "scheduled trigger rejected", "job", name, "error", err)
		r.emitFireMetrics(name, metrics.ResultError, elapsed, err)
	case resp.Success:
		r.logger.InfoContext(ctx, "scheduled job finished", "job", name, "run_id", resp.RunID, "message", resp.Message)
		r.emitFireMetrics(name, metrics.ResultSuccess, elapsed, nil)
	case resp.ErrorCode == string(apperrors.ErrCodeJobInProgress):
		r.logger.InfoContext(ctx, "scheduled job skipped", "job", name, "reason", resp.Message)
		r.emitFireMetrics(name, metrics.ResultSkipped, elapsed, nil)
	default:
		r.logger.WarnContext(ctx, "scheduled job did not succeed",
			"job", name,
			"run_id", resp.RunID,
			"error_code", resp.ErrorCode,
			"message", resp.Message,
		)
		r.emitFireMetrics(name, metrics.ResultError, elapsed, errors.New(resp.Message))
	}
}

func (r *Runner) emitFireMetrics(name catalog.JobName, result string, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	tags := map[string]string{
		"job":    string(name),
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.fire", 1, tags)

	if elapsed > 0 {
		r.metrics.Timing("scheduler.fire_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), map[string]string{"job": string(name)})
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
