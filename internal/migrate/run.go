// Package migrate applies the embedded SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID serializes concurrent migrators through a session advisory lock.
const migrationLockID int64 = 7_240_001

// Run applies all SQL migrations embedded in this package. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, lockErr := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); lockErr != nil {
		return fmt.Errorf("acquire migration lock: %w", lockErr)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID); unlockErr != nil {
			logger.WarnContext(ctx, "failed to release migration lock", "error", unlockErr)
		}
	}()

	if _, err = conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if applyErr := applyMigration(ctx, conn, logger, f); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Files lists the embedded migration file names in apply order.
func Files() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, logger *slog.Logger, file string) error {
	version := strings.TrimSuffix(file, ".sql")

	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", file, err)
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	logger.InfoContext(ctx, "applying migration", "version", version)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", file)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", file, execErr)
	}
	if _, insErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); insErr != nil {
		return fmt.Errorf("record migration %s: %w", file, insErr)
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", file, commitErr)
	}
	return nil
}
