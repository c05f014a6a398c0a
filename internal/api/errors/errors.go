// Package errors defines the portal's error envelope and maps domain
// failures onto it.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// Error codes returned in the "code" field.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[string]int{
	CodeValidationError:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeConflict:           http.StatusConflict,
	CodeTooManyRequests:    http.StatusTooManyRequests,
	CodeInternalError:      http.StatusInternalServerError,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// APIError is the body of every failed portal response. Success is always
// false.
type APIError struct {
	Success   bool           `json:"success"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatusCode returns the response status for e. Unknown codes are 500.
func (e *APIError) HTTPStatusCode() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithRequestID returns a copy of e tagged with requestID.
func (e *APIError) WithRequestID(requestID string) *APIError {
	cp := *e
	cp.RequestID = requestID
	return &cp
}

// New creates an APIError.
func New(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func NewValidationError(message string) *APIError {
	return New(CodeValidationError, message)
}

func NewNotFoundError(message string) *APIError {
	return New(CodeNotFound, message)
}

func NewInternalError(message string) *APIError {
	return New(CodeInternalError, message)
}

func NewServiceUnavailableError(message string) *APIError {
	return New(CodeServiceUnavailable, message)
}

// NewTooManyRequestsError is returned by the authenticate rate limiter.
func NewTooManyRequestsError(message string) *APIError {
	return New(CodeTooManyRequests, message)
}

// NewMethodNotAllowedError is returned for a known path with the wrong verb.
func NewMethodNotAllowedError() *APIError {
	return New(CodeMethodNotAllowed, "Method Not Allowed")
}

// WriteJSON writes data as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes err with its mapped status.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// FieldError is one entry of details.fields on a validation response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors lists the invalid fields of a request.
type FieldErrors []FieldError

// APIError wraps v in a VALIDATION_ERROR carrying message.
func (v FieldErrors) APIError(message string) *APIError {
	if message == "" && len(v) > 0 {
		message = v[0].Message
	}
	return &APIError{
		Code:    CodeValidationError,
		Message: message,
		Details: map[string]any{"fields": v},
	}
}

// ErrorLogEntry is the server-side record of an unexpected failure.
type ErrorLogEntry struct {
	RequestID  string
	ErrorCode  string
	Message    string
	StackTrace string
}

// NewErrorLogEntry captures the calling goroutine's stack.
func NewErrorLogEntry(requestID, errorCode, message string) *ErrorLogEntry {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return &ErrorLogEntry{
		RequestID:  requestID,
		ErrorCode:  errorCode,
		Message:    message,
		StackTrace: string(buf[:n]),
	}
}

// LogAttrs returns e as slog key/value pairs.
func (e *ErrorLogEntry) LogAttrs() []any {
	return []any{
		"request_id", e.RequestID,
		"error_code", e.ErrorCode,
		"message", e.Message,
		"stack_trace", e.StackTrace,
	}
}
