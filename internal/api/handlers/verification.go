package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/fleet-portal/internal/verification"
)

// VerificationHandler issues identity verification sessions.
type VerificationHandler struct {
	svc    *verification.Service
	logger *slog.Logger
}

// NewVerificationHandler creates a new verification handler.
func NewVerificationHandler(svc *verification.Service, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, logger: logger}
}

// CreateSessionRequest is the body of POST /api/v1/verification-session.
type CreateSessionRequest struct {
	Booking any `json:"booking"`
}

// CreateSession handles POST /api/v1/verification-session.
func (h *VerificationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	session, err := h.svc.CreateSession(req.Booking)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteData(w, session)
}
