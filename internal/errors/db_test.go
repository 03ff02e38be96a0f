package errors

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_NilError(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "pgx no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "sql no rows", err: sql.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique violation with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "id"},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "unique violation parsed from detail",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (id)=(abc) already exists."},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "check violation",
			err:       &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "status"},
			wantCode:  ErrCodeValidation,
			wantField: "status",
		},
		{
			name:     "invalid uuid text",
			err:      &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "other pg error",
			err:      &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			assert.True(t, IsAppError(err, tt.wantCode), "got code %q", GetCode(err))
			assert.Equal(t, tt.wantField, GetField(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapDBError_Unrecognized(t *testing.T) {
	orig := errors.New("network unreachable")
	assert.Same(t, orig, MapDBError(orig))
}
