// Package pgxutil holds transaction helpers shared by the Postgres repositories.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLTxConfig groups parameters for WithSQLTx.
type SQLTxConfig struct {
	Opts *sql.TxOptions
	Fn   func(*sql.Tx) error
}

// WithSQLTx runs cfg.Fn within a database/sql transaction, committing on success and
// rolling back on error.
func WithSQLTx(ctx context.Context, db *sql.DB, cfg SQLTxConfig) (err error) {
	if cfg.Fn == nil {
		return errors.New("transaction function is required")
	}
	tx, err := db.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
