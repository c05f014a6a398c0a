package errors

import (
	"context"
	stderrors "errors"

	"github.com/narvanalabs/fleet-portal/internal/booking"
	"github.com/narvanalabs/fleet-portal/internal/functions"
	"github.com/narvanalabs/fleet-portal/internal/validation"
	"github.com/narvanalabs/fleet-portal/internal/vanity"
	"github.com/narvanalabs/fleet-portal/internal/verification"
)

// Client-facing messages.
const (
	MsgInternal           = "Internal server error"
	MsgConfiguration      = "Server configuration error"
	MsgServiceUnavailable = "Service temporarily unavailable"
	MsgInvalidCredentials = "Invalid booking ID or password"
)

var sentinels = []struct {
	err error
	api *APIError
}{
	{booking.ErrBookingNotFound, NewNotFoundError("Booking not found")},
	{booking.ErrAgreementNotFound, NewNotFoundError("Agreement not found")},
	{booking.ErrPasswordMismatch, New(CodeUnauthorized, MsgInvalidCredentials)},
	{booking.ErrInvalidPasswordFormat, NewValidationError("Invalid password format")},
	{booking.ErrConfiguration, NewInternalError(MsgConfiguration)},
	{booking.ErrServiceUnavailable, NewServiceUnavailableError(MsgServiceUnavailable)},
	{booking.ErrCorruptRecord, NewInternalError(MsgInternal)},
	{vanity.ErrPageNotFound, NewNotFoundError("Vanity page not found")},
	{vanity.ErrServiceUnavailable, NewServiceUnavailableError(MsgServiceUnavailable)},
	{verification.ErrMissingBooking, NewValidationError("Missing required field: booking")},
	{functions.ErrFunctionNotFound, NewServiceUnavailableError("Account service is not deployed")},
	{functions.ErrNotConfigured, NewServiceUnavailableError("Account service is not configured")},
	{functions.ErrEmailInUse, New(CodeConflict, "Email address is already in use")},
	{functions.ErrWeakPassword, NewValidationError("Password is too weak")},
	{functions.ErrInvalidEmail, NewValidationError("Invalid email address")},
	{functions.ErrInvalidArgument, NewValidationError("Invalid request data")},
	{functions.ErrPermissionDenied, New(CodeForbidden, "Permission denied")},
	{context.DeadlineExceeded, NewServiceUnavailableError(MsgServiceUnavailable)},
}

// FromError maps a domain error to the API error returned to clients.
// Unknown errors become a generic internal error so no detail leaks.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var errs validation.Errors
	if stderrors.As(err, &errs) && len(errs) > 0 {
		fields := make(FieldErrors, len(errs))
		for i, e := range errs {
			fields[i] = FieldError{Field: e.Field, Message: e.Message}
		}
		return fields.APIError(errs.Message())
	}

	var invalid *validation.ValidationError
	if stderrors.As(err, &invalid) {
		return FieldErrors{{Field: invalid.Field, Message: invalid.Message}}.APIError(invalid.Message)
	}

	for _, s := range sentinels {
		if stderrors.Is(err, s.err) {
			return New(s.api.Code, s.api.Message)
		}
	}

	var callErr *functions.CallError
	if stderrors.As(err, &callErr) {
		return NewInternalError("Function error: " + callErr.Message)
	}

	return NewInternalError(MsgInternal)
}
