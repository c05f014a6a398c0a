package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/narvanalabs/fleet-portal/internal/models"
	"github.com/narvanalabs/fleet-portal/internal/validation"
)

// Authenticator verifies booking and agreement passwords.
type Authenticator interface {
	AuthenticateBooking(ctx context.Context, bookingID, password string) (*models.Booking, error)
	AuthenticateAgreement(ctx context.Context, bookingID, password, agreementID string) (*models.Agreement, error)
}

// BookingHandler serves the password-gated booking endpoints.
type BookingHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(auth Authenticator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{auth: auth, logger: logger}
}

// AuthenticateBookingRequest is the body of POST /api/v1/authenticate-booking.
type AuthenticateBookingRequest struct {
	BookingID string `json:"bookingId"`
	Password  string `json:"password"`
}

// AuthenticateAgreementRequest is the body of POST /api/v1/authenticate-agreement.
type AuthenticateAgreementRequest struct {
	BookingID   string `json:"bookingId"`
	Password    string `json:"password"`
	AgreementID string `json:"agreementId"`
}

// AuthenticateBooking handles POST /api/v1/authenticate-booking.
func (h *BookingHandler) AuthenticateBooking(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateBookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	errs := validation.Required(map[string]any{
		"bookingId": req.BookingID,
		"password":  req.Password,
	}, "bookingId", "password")
	if len(errs) == 0 {
		errs.Merge(validation.ValidateRecordID("bookingId", req.BookingID))
	}
	if err := errs.Err(); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	b, err := h.auth.AuthenticateBooking(r.Context(), req.BookingID, req.Password)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteData(w, b)
}

// AuthenticateAgreement handles POST /api/v1/authenticate-agreement.
func (h *BookingHandler) AuthenticateAgreement(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateAgreementRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	errs := validation.Required(map[string]any{
		"bookingId":   req.BookingID,
		"password":    req.Password,
		"agreementId": req.AgreementID,
	}, "bookingId", "password", "agreementId")
	if len(errs) == 0 {
		errs.Merge(validation.ValidateRecordID("bookingId", req.BookingID))
		errs.Merge(validation.ValidateRecordID("agreementId", req.AgreementID))
	}
	if err := errs.Err(); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	a, err := h.auth.AuthenticateAgreement(r.Context(), req.BookingID, req.Password, req.AgreementID)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteData(w, a)
}
