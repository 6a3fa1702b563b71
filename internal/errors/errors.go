// Package errors defines the API error taxonomy shared by every
// handler: structured JSON bodies, render.Renderer status mapping, and
// sentinel errors for license business states.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retry_after,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
	}
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")

	// 401 Unauthorized
	ErrInvalidSignature = New(http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid or missing webhook signature")
	ErrInvalidToken     = New(http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired download token")

	// 403 Forbidden
	ErrLicenseInvalid = New(http.StatusForbidden, "LICENSE_INVALID", "Invalid or expired license")

	// 404 Not Found
	ErrNotFound           = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrActivationNotFound = New(http.StatusNotFound, "ACTIVATION_NOT_FOUND", "No activation found for this site")

	// 405 Method Not Allowed
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "HTTP method not allowed")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// 500 / 502
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrUpstream       = New(http.StatusBadGateway, "UPSTREAM_ERROR", "Upstream service failed")
	ErrNotConfigured  = New(http.StatusInternalServerError, "NOT_CONFIGURED", "Service is not configured")
)

// Sentinel errors for license business states. These travel up from the
// payments client and are translated to API errors at the handler edge.
var (
	ErrLicenseExpired         = errors.New("license expired")
	ErrLicenseInactive        = errors.New("license inactive")
	ErrActivationLimitReached = errors.New("activation limit reached")
	ErrLicenseNotFound        = errors.New("license not found")
)

// ValidationError represents a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationErrors creates a 400 error carrying per-field messages.
func NewValidationErrors(messages []string) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		map[string]interface{}{"errors": messages},
	)
}

// RateLimited creates a 429 error carrying the retry-after hint.
func RateLimited(retryAfterSeconds int) *APIError {
	e := New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
		fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds", retryAfterSeconds))
	e.RetryAfter = retryAfterSeconds
	return e
}

// Upstream wraps an upstream failure. The raw error is attached as
// detail only when development is true; production gets the generic
// message so provider internals never leak.
func Upstream(err error, development bool) *APIError {
	if development {
		return NewWithDetails(http.StatusBadGateway, "UPSTREAM_ERROR", "Upstream service failed", err.Error())
	}
	return ErrUpstream
}

// Internal wraps an unexpected failure with the same exposure policy
// as Upstream.
func Internal(err error, development bool) *APIError {
	if development {
		return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error", err.Error())
	}
	return ErrInternalServer
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err,
	}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}
