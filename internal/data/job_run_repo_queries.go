package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// runFilterQueryBuilder accumulates WHERE conditions with positional args.
type runFilterQueryBuilder struct {
	conds []string
	args  []any
}

func (b *runFilterQueryBuilder) add(condition string, value any) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, fmt.Sprintf(condition, len(b.args)))
}

func (b *runFilterQueryBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func buildRunFilters(opts model.RunListOptions) *runFilterQueryBuilder {
	b := &runFilterQueryBuilder{}
	if name := strings.TrimSpace(opts.JobName); name != "" {
		// Matches both the scheduled and the manual log name.
		b.add("(job_name = $%[1]d OR job_name = 'MANUAL_' || $%[1]d)", strings.ToUpper(name))
	}
	if opts.Status != "" {
		b.add("status = $%d", opts.Status)
	}
	if opts.TriggeredBy != "" {
		b.add("triggered_by = $%d", opts.TriggeredBy)
	}
	if opts.From != nil {
		b.add("started_at >= $%d", opts.From.UTC())
	}
	if opts.To != nil {
		b.add("started_at < $%d", opts.To.UTC())
	}
	return b
}

// List returns a page of runs, newest first, with the total count of matching rows.
func (r *JobRunRepo) List(ctx context.Context, opts model.RunListOptions) (*model.RunPage, error) {
	opts.Normalize()
	b := buildRunFilters(opts)
	where := b.where()

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_runs`+where, b.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count job runs: %w", apperrors.MapDBError(err))
	}

	n := len(b.args)
	query := fmt.Sprintf(`SELECT %s FROM job_runs%s ORDER BY started_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		jobRunColumns, where, n+1, n+2)
	args := append(append([]any{}, b.args...), opts.Limit, opts.Offset())

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	page := &model.RunPage{Data: []*model.JobRun{}, Total: total, Page: opts.Page, Limit: opts.Limit}
	for rows.Next() {
		run, scanErr := scanJobRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job run: %w", scanErr)
		}
		page.Data = append(page.Data, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}
	return page, nil
}

// Stats aggregates runs per job name. Manual runs are folded into the plain job name.
func (r *JobRunRepo) Stats(ctx context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error) {
	b := buildRunFilters(model.RunListOptions{From: opts.From, To: opts.To})
	query := `
		SELECT
			regexp_replace(job_name, '^MANUAL_', '') AS name,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'SUCCESS') AS success,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE status = 'RUNNING') AS running,
			COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0)::float8 AS avg_duration_ms,
			MAX(started_at) AS last_run_at
		FROM job_runs` + b.where() + `
		GROUP BY name
		ORDER BY name`

	rows, err := r.DB.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("query job run stats: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	out := []model.JobRunStats{}
	for rows.Next() {
		var s model.JobRunStats
		if scanErr := rows.Scan(&s.JobName, &s.Total, &s.Success, &s.Failed, &s.Running, &s.AvgDurationMs, &s.LastRunAt); scanErr != nil {
			return nil, fmt.Errorf("scan job run stats: %w", scanErr)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job run stats: %w", err)
	}
	return out, nil
}
