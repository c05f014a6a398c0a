// Package handlers implements the portal's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/fleet-portal/internal/api/errors"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Response is the success envelope every endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteData writes a 200 success envelope around data.
func WriteData(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteDataWithMessage writes a 200 success envelope with a message.
func WriteDataWithMessage(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// WriteError maps err to an API error, logs it and writes it. Server-side
// failures log at error level, client errors at info.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	requestID := middleware.GetReqID(r.Context())
	apiErr := apierrors.FromError(err).WithRequestID(requestID)

	l := logger.FromContext(r.Context(), log)
	attrs := []any{"path", r.URL.Path, "code", apiErr.Code, "error", err}
	if apiErr.HTTPStatusCode() >= http.StatusInternalServerError {
		l.Error("request failed", attrs...)
	} else {
		l.Info("request rejected", attrs...)
	}

	apierrors.WriteError(w, apiErr)
}

var errInvalidBody = apierrors.NewValidationError("Invalid request body")

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errInvalidBody
}
