package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/data/pgxutil"
)

// Advisory lock namespace for retention operations, used with the two-arg
// pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReaperMajor     = 1000
	advisoryLockReaperFailStale = 1
	advisoryLockReaperDelete    = 2
)

// StaleRunMessage is recorded on runs abandoned in RUNNING state.
const StaleRunMessage = "run abandoned: still RUNNING after the stale threshold"

var _ core.RunReaperRepository = (*JobRunRepo)(nil)

// withReaperLock runs fn inside a transaction holding the given advisory lock.
// When another instance holds the lock, fn is skipped and 0 is returned.
func (r *JobRunRepo) withReaperLock(ctx context.Context, minor int, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	var affected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
			n, err := fn(tx)
			if err != nil {
				return err
			}
			affected = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DeleteOlderThan deletes up to batchSize runs that started before cutoff.
func (r *JobRunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return r.withReaperLock(ctx, advisoryLockReaperDelete, func(tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM job_runs
			WHERE id IN (
				SELECT id FROM job_runs
				WHERE started_at < $1
				ORDER BY started_at
				LIMIT $2
			)`, cutoff.UTC(), batchSize)
		if err != nil {
			return 0, fmt.Errorf("delete old job runs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		return n, nil
	})
}

// FailStaleRunning marks up to batchSize runs that have been RUNNING longer than maxAge as FAILED.
func (r *JobRunRepo) FailStaleRunning(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return r.withReaperLock(ctx, advisoryLockReaperFailStale, func(tx *sql.Tx) (int64, error) {
		now := r.timeProvider.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE job_runs
			SET status = 'FAILED',
			    completed_at = $1,
			    duration_ms = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($1::timestamptz - started_at)) * 1000))::bigint,
			    error_message = $3
			WHERE id IN (
				SELECT id FROM job_runs
				WHERE status = 'RUNNING'
				  AND started_at < $2
				ORDER BY started_at
				LIMIT $4
			)`, now, now.Add(-maxAge), StaleRunMessage, batchSize)
		if err != nil {
			return 0, fmt.Errorf("fail stale job runs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		return n, nil
	})
}
