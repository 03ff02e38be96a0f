package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/hrm-scheduler/internal/migrate"
)

// RunMigrations sets up the required schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrate.Run(ctx, db, logger)
}
