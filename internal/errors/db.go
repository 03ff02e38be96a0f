package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances.
//   - context deadline/cancel → Timeout/Canceled
//   - pgx.ErrNoRows or sql.ErrNoRows → NotFound
//   - unique violation → Conflict
//   - check / not null / invalid text representation → Validation
//
// Errors that are not recognized are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := pgErr.ColumnName
		if field == "" {
			if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
				field = m[1]
			}
		}
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists.",
			Field:   field,
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "Invalid data. Please check your input.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	case pgerrcode.QueryCanceled:
		return &AppError{Code: ErrCodeTimeout, Message: "Database query was canceled.", Cause: pgErr}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}
