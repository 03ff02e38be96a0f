package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// RepoConfig holds configuration options for the job run repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
	// NewID overrides run id generation (tests).
	NewID func() string
}

// JobRunRepo persists JobRun records in Postgres.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
	newID        func() string
}

var _ core.JobRunRepository = (*JobRunRepo)(nil)

// NewJobRunRepo creates a new JobRunRepo with the given database connection and configuration.
func NewJobRunRepo(db *sql.DB, cfg RepoConfig) *JobRunRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &JobRunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_run_repo"),
		newID:        newID,
	}
}

const jobRunColumns = `id, job_name, job_type, status, started_at, completed_at, duration_ms, ` +
	`result, error_message, error_stack, triggered_by, created_by, params, period_key, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRun(row rowScanner) (*model.JobRun, error) {
	var (
		run    model.JobRun
		result []byte
		params []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.JobName,
		&run.JobType,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
		&result,
		&run.ErrorMessage,
		&run.ErrorStack,
		&run.TriggeredBy,
		&run.CreatedBy,
		&params,
		&run.PeriodKey,
		&run.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		run.Result = json.RawMessage(result)
	}
	if len(params) > 0 {
		run.Params = json.RawMessage(params)
	}
	return &run, nil
}

func marshalJSON(v any, fallback string) ([]byte, error) {
	if v == nil {
		return []byte(fallback), nil
	}
	if raw, ok := v.(json.RawMessage); ok && len(raw) > 0 {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// Start inserts a RUNNING run.
func (r *JobRunRepo) Start(ctx context.Context, req model.StartRunRequest) (*model.JobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid run")
	}
	params, err := marshalJSON(req.Params, "{}")
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO job_runs (id, job_name, job_type, status, started_at, triggered_by, created_by, params, period_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+jobRunColumns,
		r.newID(),
		req.JobName,
		req.JobType,
		model.RunStatusRunning,
		now,
		req.TriggeredBy,
		nullString(req.CreatedBy),
		params,
		req.PeriodKey,
	)
	run, err := scanJobRun(row)
	if err != nil {
		return nil, fmt.Errorf("insert job run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

const completeRunSQL = `
	UPDATE job_runs
	SET status = 'SUCCESS',
	    completed_at = $2,
	    duration_ms = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - started_at)) * 1000))::bigint,
	    result = $3
	WHERE id = $1 AND status = 'RUNNING'`

// Complete moves a RUNNING run to SUCCESS. A run that is already terminal is left unchanged.
func (r *JobRunRepo) Complete(ctx context.Context, id string, result any) (bool, error) {
	payload, err := marshalJSON(result, "{}")
	if err != nil {
		return false, fmt.Errorf("marshal run result: %w", err)
	}
	return r.finish(ctx, id, "complete", completeRunSQL, payload)
}

const failRunSQL = `
	UPDATE job_runs
	SET status = 'FAILED',
	    completed_at = $2,
	    duration_ms = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - started_at)) * 1000))::bigint,
	    error_message = $3,
	    error_stack = $4
	WHERE id = $1 AND status = 'RUNNING'`

// Fail moves a RUNNING run to FAILED. A run that is already terminal is left unchanged.
func (r *JobRunRepo) Fail(ctx context.Context, id string, failure core.RunFailure) (bool, error) {
	msg := strings.TrimSpace(failure.Message)
	if msg == "" {
		msg = "unknown error"
	}
	return r.finish(ctx, id, "fail", failRunSQL, msg, nullString(failure.Stack))
}

func (r *JobRunRepo) finish(ctx context.Context, id, op, query string, args ...any) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperrors.ValidationField("id", "run id is required")
	}
	all := append([]any{id, r.timeProvider.Now().UTC()}, args...)
	res, err := r.DB.ExecContext(ctx, query, all...)
	if err != nil {
		return false, fmt.Errorf("%s job run: %w", op, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s job run rows affected: %w", op, err)
	}
	if n == 0 {
		r.logger.WarnContext(ctx, "ignoring terminal write for run that is missing or already finished",
			"run_id", id, "op", op)
		return false, nil
	}
	return true, nil
}

// GetByID returns a run or a NotFound error.
func (r *JobRunRepo) GetByID(ctx context.Context, id string) (*model.JobRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("job run %s not found", id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE id = $1`, id)
	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("job run %s not found", id)
		}
		return nil, fmt.Errorf("get job run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

const hasSuccessSQL = `
	SELECT EXISTS (
		SELECT 1 FROM job_runs
		WHERE status = 'SUCCESS'
		  AND job_name = ANY($1)
		  AND CASE
		        WHEN period_key <> '' THEN period_key = $4
		        ELSE started_at >= $2 AND started_at < $3
		      END
	)`

// HasSuccess reports whether any of q.Names has a SUCCESS run for the period. Runs recorded
// with a period key match on that key alone; the start time only decides for runs without one.
func (r *JobRunRepo) HasSuccess(ctx context.Context, q model.SuccessQuery) (bool, error) {
	if len(q.Names) == 0 {
		return false, nil
	}
	var ok bool
	if err := r.DB.QueryRowContext(ctx, hasSuccessSQL, q.Names, q.From.UTC(), q.To.UTC(), q.PeriodKey).Scan(&ok); err != nil {
		return false, fmt.Errorf("query successful runs: %w", apperrors.MapDBError(err))
	}
	return ok, nil
}
