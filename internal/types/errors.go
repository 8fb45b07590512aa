package types

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error codes. The prefix decides the HTTP status; see HTTPStatus.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat   ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon   ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidDate  ErrorCode = "validation_invalid_date"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidBody  ErrorCode = "validation_invalid_body"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"

	// Insufficient data (422)
	ErrCodeInsufficientData ErrorCode = "insufficient_data"

	// Not Found (404)
	ErrCodeNotFoundSavedQuery ErrorCode = "not_found_saved_query"
	ErrCodeNotFoundRoute      ErrorCode = "not_found_route"

	// Method Not Allowed (405)
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB              ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
	ErrCodeInternalCache           ErrorCode = "internal_cache_error"
	ErrCodeUpstreamHistory         ErrorCode = "upstream_history_unavailable"
	ErrCodeUpstreamMalformedSeries ErrorCode = "upstream_malformed_series"
	ErrCodeUpstreamCurrent         ErrorCode = "upstream_current_conditions_unavailable"
	ErrCodeUpstreamUnavailable     ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited     ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps a code to its HTTP status. Unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeInsufficientData):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeMethodNotAllowed):
		return http.StatusMethodNotAllowed // 405
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500, internal_*
	}
}

// AppError is the error type that crosses package boundaries. Engine
// sentinels and provider failures are translated into one before they reach
// a handler, and core.Error renders it without exposing Err.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of e with details merged over its own.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError builds an AppError; err may be nil.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails is NewAppError with structured details, such as
// the mmdd of an insufficient_data error.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
