package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/narvanalabs/fleet-portal/internal/onboarding"
)

// Onboarder registers fleet owners and records inquiries.
type Onboarder interface {
	Register(ctx context.Context, account map[string]any) (json.RawMessage, error)
	Inquire(ctx context.Context, in onboarding.Inquiry) (json.RawMessage, error)
}

// OnboardingHandler serves sign-up and landing page endpoints.
type OnboardingHandler struct {
	svc    Onboarder
	logger *slog.Logger
}

// NewOnboardingHandler creates a new onboarding handler.
func NewOnboardingHandler(svc Onboarder, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/register.
func (h *OnboardingHandler) Register(w http.ResponseWriter, r *http.Request) {
	account := map[string]any{}
	if err := decodeBody(w, r, &account); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.Register(r.Context(), account)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteDataWithMessage(w, "Account created successfully", result)
}

// Inquire handles POST /api/v1/inquire.
func (h *OnboardingHandler) Inquire(w http.ResponseWriter, r *http.Request) {
	var req onboarding.Inquiry
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.Inquire(r.Context(), req)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteDataWithMessage(w, "Inquiry submitted successfully", result)
}
