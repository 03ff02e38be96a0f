package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/model"
)

const (
	statsVersionKey      = "job_runs:stats:version"
	defaultStatsCacheTTL = time.Minute
)

// JobRunServiceOptions groups dependencies for JobRunService.
type JobRunServiceOptions struct {
	Runs     core.JobRunRepository // Required
	Cache    core.CacheRepository  // Optional: caches Stats results
	CacheTTL time.Duration         // Optional: defaults to one minute
	Logger   *slog.Logger          // Optional
}

// JobRunService serves the run history and per-job statistics.
type JobRunService struct {
	runs     core.JobRunRepository
	cache    core.CacheRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewJobRunService constructs a JobRunService.
func NewJobRunService(opts JobRunServiceOptions) (*JobRunService, error) {
	if opts.Runs == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultStatsCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunService{
		runs:     opts.Runs,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger.With("component", "job_run_service"),
	}, nil
}

// List returns one page of run history.
func (s *JobRunService) List(ctx context.Context, opts model.RunListOptions) (*model.RunPage, error) {
	opts.Normalize()
	return s.runs.List(ctx, opts)
}

// Get returns a single run.
func (s *JobRunService) Get(ctx context.Context, id string) (*model.JobRun, error) {
	return s.runs.GetByID(ctx, id)
}

// Stats returns per-job aggregates, served from the cache when one is configured.
// Cache failures degrade to a direct query.
func (s *JobRunService) Stats(ctx context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error) {
	if s.cache == nil {
		return s.runs.Stats(ctx, opts)
	}

	key, err := s.statsKey(ctx, opts)
	if err != nil {
		s.logger.WarnContext(ctx, "stats cache unavailable", "error", err)
		return s.runs.Stats(ctx, opts)
	}
	if raw, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "stats cache read failed", "key", key, "error", err)
	} else if raw != nil {
		var cached []model.JobRunStats
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable stats cache entry", "key", key)
	}

	stats, err := s.runs.Stats(ctx, opts)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "stats cache write failed", "key", key, "error", err)
		}
	}
	return stats, nil
}

// InvalidateStats retires every cached stats entry by bumping the cache version.
func (s *JobRunService) InvalidateStats(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, statsVersionKey); err != nil {
		s.logger.WarnContext(ctx, "stats cache invalidation failed", "error", err)
	}
}

func (s *JobRunService) statsKey(ctx context.Context, opts model.RunStatsOptions) (string, error) {
	raw, err := s.cache.Get(ctx, statsVersionKey)
	if err != nil {
		return "", err
	}
	version := int64(0)
	if raw != nil {
		if version, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return "", fmt.Errorf("parse stats version: %w", err)
		}
	}
	return fmt.Sprintf("job_runs:stats:v%d:%s:%s", version, boundKey(opts.From), boundKey(opts.To)), nil
}

func boundKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return strconv.FormatInt(t.UTC().Unix(), 10)
}
