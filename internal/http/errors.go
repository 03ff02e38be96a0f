package httpx

import (
	"log/slog"
	"net/http"

	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// statusForCode maps application error codes to HTTP status codes.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeParametersInvalid, apperrors.ErrCodeFutureDateNotAllowed, apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeJobInProgress, apperrors.ErrCodeAlreadyProcessed, apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeDependencyNotMet:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err using its AppError code. Unclassified errors become a generic 500
// so internal details stay in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := apperrors.GetCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: string(apperrors.ErrCodeInternal), Err: errInternal})
		return
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err, Field: apperrors.GetField(err)})
}
