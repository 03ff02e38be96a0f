package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/core"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	obserrors "github.com/target/hrm-scheduler/internal/observability/errors"
	"github.com/target/hrm-scheduler/internal/observability/metrics"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
)

// DefaultRetentionDays is the purge window used when none is given.
const DefaultRetentionDays = 30

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.RunReaperRepository // Required: reaper repository
	Config  config.ReaperConfig      // Required: reaper configuration
	Clock   OrgClock                 // Optional: defaults to the system clock
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	// OnDeleted runs after any rows were removed, e.g. to invalidate cached stats.
	OnDeleted func(ctx context.Context)
}

// ReaperService maintains the job log.
//
// This service manages:
// - Failing runs left RUNNING by a process that died before the terminal write.
// - Deleting runs older than the retention window.
type ReaperService struct {
	repo      core.RunReaperRepository
	config    config.ReaperConfig
	clock     OrgClock
	logger    *slog.Logger
	metrics   statsd.Sink
	onDeleted func(ctx context.Context)
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RunReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"stale_run_max_age", opts.Config.StaleRunMaxAge,
			"retention", opts.Config.Retention,
		)
	}

	return &ReaperService{
		repo:      opts.Repo,
		config:    opts.Config,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   opts.Metrics,
		onDeleted: opts.OnDeleted,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.New("reaper interval must be positive")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// Purge deletes every run started more than olderThanDays days ago and returns the count.
// A non-positive value uses DefaultRetentionDays.
func (s *ReaperService) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultRetentionDays
	}
	if olderThanDays > 3650 {
		return 0, apperrors.ValidationField("olderThanDays", "olderThanDays must be at most 3650")
	}
	cutoff := s.clock.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.deleteBefore(ctx, cutoff)
	if err != nil {
		return deleted, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "purged job runs", "count", deleted, "older_than_days", olderThanDays)
	}
	s.emitCleanupOperationMetric("purge", deleted, nil)
	return deleted, nil
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// runLoop runs the cleanup loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// cleanupOp is one maintenance pass. operation tags its metrics; label prefixes its error.
type cleanupOp struct {
	operation string
	label     string
	fn        batchFunc
}

type cleanupResult struct {
	operation string
	count     int64
	err       error
}

// runCleanup runs every maintenance pass, continuing past failures.
// It returns context.Canceled when every failure was a cancellation.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	ops := []cleanupOp{
		{operation: "fail_stale", label: "fail stale running jobs", fn: s.failStaleRuns},
		{operation: "delete_expired", label: "delete expired job runs", fn: s.deleteExpiredRuns},
	}

	results := make([]cleanupResult, 0, len(ops))
	var errs []error
	canceledOnly := true
	for _, op := range ops {
		count, err := op.fn(ctx)
		results = append(results, cleanupResult{operation: op.operation, count: count, err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op.label, err))
			canceledOnly = canceledOnly && isContextCancellation(err)
		}
	}
	s.emitCleanupMetrics(results, time.Since(start))

	switch {
	case len(errs) == 0:
		return nil
	case canceledOnly:
		return context.Canceled
	default:
		return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
	}
}

type batchFunc func(context.Context) (int64, error)

// failStaleRuns marks runs left RUNNING beyond the configured max age as FAILED.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) failStaleRuns(ctx context.Context) (int64, error) {
	total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailStaleRunning(ctx, s.config.StaleRunMaxAge, s.batchSize())
	})
	if total > 0 && s.logger != nil {
		s.logger.WarnContext(ctx, "failed stale running jobs",
			"count", total,
			"max_age", s.config.StaleRunMaxAge,
		)
	}
	return total, err
}

// deleteExpiredRuns deletes runs older than the retention window.
func (s *ReaperService) deleteExpiredRuns(ctx context.Context) (int64, error) {
	total, err := s.deleteBefore(ctx, s.clock.Now().Add(-s.config.Retention))
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired job runs",
			"count", total,
			"retention", s.config.Retention,
		)
	}
	return total, err
}

func (s *ReaperService) deleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.DeleteOlderThan(ctx, cutoff, s.batchSize())
	})
	if total > 0 && s.onDeleted != nil {
		s.onDeleted(ctx)
	}
	return total, err
}

// drain repeats fn until a batch affects no rows, checking ctx between batches.
func (s *ReaperService) drain(ctx context.Context, fn batchFunc) (int64, error) {
	var total int64
	for {
		count, err := fn(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) batchSize() int {
	if s.config.BatchSize < 1 {
		return 1000
	}
	return s.config.BatchSize
}

// emitCleanupMetrics reports the whole pass and each operation. Cancellation is not an error here.
func (s *ReaperService) emitCleanupMetrics(results []cleanupResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		err := suppressContextCancellation(r.err)
		total += r.count
		if firstErr == nil {
			firstErr = err
		}
	}

	tags := withErrorClass(map[string]string{"result": cleanupResultTag(total, firstErr)}, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	for _, r := range results {
		s.emitCleanupOperationMetric(r.operation, r.count, suppressContextCancellation(r.err))
	}
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}
	tags := withErrorClass(map[string]string{
		"operation": operation,
		"result":    cleanupResultTag(count, err),
	}, err)
	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.runs_processed", count, metrics.CloneTags(tags))
	}
}

func cleanupResultTag(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func withErrorClass(tags map[string]string, err error) map[string]string {
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
