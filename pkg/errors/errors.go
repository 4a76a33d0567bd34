package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Is reports whether target is an AppError carrying the same code. This lets
// callers match pipeline outcomes with errors.Is against the sentinel values
// below regardless of wrapping.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// Outcomes of the publish and validate pipelines. Every expected failure maps
// to exactly one of these; anything else is an infrastructure fault wrapped by
// Wrap and surfaced as ErrInternalServer.
var (
	ErrDuplicateKey = &AppError{
		Code:       "DUPLICATE_VERIFIER",
		Message:    "A credential with this verifier already exists",
		StatusCode: http.StatusConflict,
	}

	ErrKeyNotFound = &AppError{
		Code:       "KEY_NOT_FOUND",
		Message:    "No credential matches the presented key",
		StatusCode: http.StatusNotFound,
	}

	ErrKeyUnauthorized = &AppError{
		Code:       "KEY_UNAUTHORIZED",
		Message:    "The presented key does not match any credential",
		StatusCode: http.StatusUnauthorized,
	}

	ErrKeyExpired = &AppError{
		Code:       "KEY_EXPIRED",
		Message:    "The credential has expired",
		StatusCode: http.StatusGone,
	}

	ErrUsageLimit = &AppError{
		Code:       "USAGE_LIMIT_EXCEEDED",
		Message:    "The credential has reached its usage limit",
		StatusCode: http.StatusForbidden,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrLockAcquisition = &AppError{
		Code:       "VALIDATION_IN_PROGRESS",
		Message:    "Another validation of this key is in progress, retry shortly",
		StatusCode: http.StatusLocked,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Insufficient permissions",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewValidation reports a malformed publish input, naming the offending field.
func NewValidation(field, reason string) *AppError {
	return &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    fmt.Sprintf("%s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}
