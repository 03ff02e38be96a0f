package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeParametersInvalid indicates missing or malformed period parameters for a job.
	ErrCodeParametersInvalid ErrorCode = "parameters_invalid"
	// ErrCodeFutureDateNotAllowed indicates a period after the current organization date.
	ErrCodeFutureDateNotAllowed ErrorCode = "future_date_not_allowed"
	// ErrCodeJobInProgress indicates the job+period is already executing.
	ErrCodeJobInProgress ErrorCode = "job_in_progress"
	// ErrCodeDependencyNotMet indicates a declared dependency has no successful run for the period.
	ErrCodeDependencyNotMet ErrorCode = "dependency_not_met"
	// ErrCodeAlreadyProcessed indicates a successful run already covers the period.
	ErrCodeAlreadyProcessed ErrorCode = "already_processed"
	// ErrCodeHandlerExecutionFailed indicates the job handler returned an error.
	ErrCodeHandlerExecutionFailed ErrorCode = "handler_execution_failed"
	// ErrCodeNoHandlerFound indicates no handler is registered for a job.
	ErrCodeNoHandlerFound ErrorCode = "no_handler_found"
)

// AlreadyProcessedMessage is reported when a period has already been handled.
const AlreadyProcessedMessage = "This job has already been processed for the specified period"

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return newf(ErrCodeInternal, format, args...)
}

// ParametersInvalid reports a missing or malformed period parameter.
func ParametersInvalid(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeParametersInvalid,
		Message: message,
		Field:   field,
	}
}

// FutureDateNotAllowedf reports a period that lies after the current organization date.
func FutureDateNotAllowedf(format string, args ...any) *AppError {
	return newf(ErrCodeFutureDateNotAllowed, format, args...)
}

// JobInProgressf reports that the guard for a job+period is already held.
func JobInProgressf(format string, args ...any) *AppError {
	return newf(ErrCodeJobInProgress, format, args...)
}

// DependencyNotMet reports the first dependency lacking a successful run.
func DependencyNotMet(job, dependency string) *AppError {
	return &AppError{
		Code:    ErrCodeDependencyNotMet,
		Message: fmt.Sprintf("dependency %s has not completed successfully for the period required by %s", dependency, job),
		Field:   dependency,
	}
}

// AlreadyProcessed reports that a successful run already covers the period.
func AlreadyProcessed() *AppError {
	return &AppError{Code: ErrCodeAlreadyProcessed, Message: AlreadyProcessedMessage}
}

// NoHandlerFound reports a job without a registered handler.
func NoHandlerFound(job string) *AppError {
	return newf(ErrCodeNoHandlerFound, "no handler registered for job %s", job)
}

// HandlerExecutionFailed wraps an error returned by the handler of job.
func HandlerExecutionFailed(job string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeHandlerExecutionFailed,
		Message: fmt.Sprintf("job %s failed", job),
		Cause:   cause,
	}
}

// Timeoutf creates a new Timeout error with formatted message.
func Timeoutf(format string, args ...any) *AppError {
	return newf(ErrCodeTimeout, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsAppError reports whether err is an AppError carrying code.
func IsAppError(err error, code ErrorCode) bool {
	return isCode(err, code)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsParametersInvalid checks if an error is a ParametersInvalid error.
func IsParametersInvalid(err error) bool {
	return isCode(err, ErrCodeParametersInvalid)
}

// IsFutureDateNotAllowed checks if an error is a FutureDateNotAllowed error.
func IsFutureDateNotAllowed(err error) bool {
	return isCode(err, ErrCodeFutureDateNotAllowed)
}

// IsJobInProgress checks if an error is a JobInProgress error.
func IsJobInProgress(err error) bool {
	return isCode(err, ErrCodeJobInProgress)
}

// IsDependencyNotMet checks if an error is a DependencyNotMet error.
func IsDependencyNotMet(err error) bool {
	return isCode(err, ErrCodeDependencyNotMet)
}

// IsAlreadyProcessed checks if an error is an AlreadyProcessed error.
func IsAlreadyProcessed(err error) bool {
	return isCode(err, ErrCodeAlreadyProcessed)
}

// IsHandlerExecutionFailed checks if an error is a HandlerExecutionFailed error.
func IsHandlerExecutionFailed(err error) bool {
	return isCode(err, ErrCodeHandlerExecutionFailed)
}

// IsNoHandlerFound checks if an error is a NoHandlerFound error.
func IsNoHandlerFound(err error) bool {
	return isCode(err, ErrCodeNoHandlerFound)
}

// IsPreRun reports whether err is one of the validation failures raised before any run is recorded.
func IsPreRun(err error) bool {
	return IsParametersInvalid(err) || IsFutureDateNotAllowed(err)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
