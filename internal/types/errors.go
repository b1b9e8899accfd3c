package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// All handlers and workers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidTimezone     ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationInvalidDateFormat   ErrorCode = "validation_invalid_date_format"
	ErrCodeValidationInvalidRecordFormat ErrorCode = "validation_invalid_record_format"
	ErrCodeValidationInvalidResetDay     ErrorCode = "validation_invalid_reset_day"
	ErrCodeValidationInvalidResetHour    ErrorCode = "validation_invalid_reset_hour"
	ErrCodeValidationInvalidCursor       ErrorCode = "validation_invalid_cursor"
	ErrCodeValidationMissingField        ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON         ErrorCode = "validation_invalid_json"
	ErrCodeValidationPreferences         ErrorCode = "validation_preferences_invalid"
	// ErrCodeRecordRejected marks malformed record content. It is never retried.
	ErrCodeRecordRejected ErrorCode = "validation_record_rejected"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"

	// Permission (403)
	ErrCodePermissionAdminRequired ErrorCode = "permission_admin_required"

	// Not Found (404)
	ErrCodeNotFoundUser   ErrorCode = "not_found_user"
	ErrCodeNotFoundRecord ErrorCode = "not_found_record"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeStoreTimeout          ErrorCode = "internal_store_timeout"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalQueue         ErrorCode = "internal_queue_error"
	ErrCodeDeliveryTimeout       ErrorCode = "upstream_delivery_timeout"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"

	ErrCodeEmailBlocked ErrorCode = "email_blocked"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeEmailBlocked):
		return http.StatusForbidden
	case s == string(ErrCodeStoreTimeout):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout snipper.
// Store and delivery failures travel upward as AppErrors so callers can
// branch on Code instead of matching driver errors.
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

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
