// Package httperr translates errors into the single JSON error schema returned by the API.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logpkg "github.com/benvon/formdrop/internal/logger"
	"go.uber.org/zap"
)

// Response is the error body every failing request receives.
type Response struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

// Error is an error that knows its HTTP status and client-safe message.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap attaches a cause that is logged but never sent to the client.
func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// BadRequest is a 400 with message.
func BadRequest(message string) *Error { return New(http.StatusBadRequest, message) }

// Unauthorized is a 401 with message.
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }

// Forbidden is a 403 with message.
func Forbidden(message string) *Error { return New(http.StatusForbidden, message) }

// NotFound is a 404 with message.
func NotFound(message string) *Error { return New(http.StatusNotFound, message) }

// Conflict is a 409 with message.
func Conflict(message string) *Error { return New(http.StatusConflict, message) }

// Validation is a 422 carrying per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Message: "Validation failed", Fields: fields}
}

// Internal is a 500 whose cause stays server-side.
func Internal(err error) *Error {
	return Wrap(http.StatusInternalServerError, "An unexpected error occurred", err)
}

// Write converts err into a Response. Errors that are not *Error become a generic 500 so
// internal details never reach the client.
func Write(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}

	if logger != nil && apiErr.Status >= http.StatusInternalServerError {
		logger.Error("request_failed",
			zap.Int("status_code", apiErr.Status),
			zap.String("method", r.Method),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(apiErr.Status)

	response := Response{
		Success:   false,
		Error:     http.StatusText(apiErr.Status),
		Message:   apiErr.Message,
		Fields:    apiErr.Fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	}

	if encErr := json.NewEncoder(w).Encode(response); encErr != nil && logger != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(encErr),
			zap.Int("status_code", apiErr.Status),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}

// NotFoundHandler answers unmatched routes with the error schema.
func NotFoundHandler(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Write(w, r, NotFound("Route not found"), logger)
	})
}

// MethodNotAllowedHandler answers routes matched with the wrong method.
func MethodNotAllowedHandler(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Write(w, r, New(http.StatusMethodNotAllowed, "Method not allowed"), logger)
	})
}
