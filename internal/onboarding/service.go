// Package onboarding handles fleet owner sign-up and landing page
// inquiries. Both are validated here and forwarded to callable functions.
package onboarding

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/narvanalabs/fleet-portal/internal/functions"
	"github.com/narvanalabs/fleet-portal/internal/validation"
)

// Caller invokes a callable function.
type Caller interface {
	Call(ctx context.Context, name string, payload any) (json.RawMessage, error)
}

// Registration defaults.
const (
	DefaultAccountType = "owner"
	DefaultUserType    = "host"
	InquirySource      = "landing_page"
)

// RegisterFields are required to create an account.
var RegisterFields = []string{"email", "password", "firstName", "lastName", "phone", "dateOfBirth", "fleetName"}

// InquiryFields are required to submit an inquiry.
var InquiryFields = []string{"name", "email", "fleetSize", "message"}

// Service validates and forwards onboarding requests.
type Service struct {
	caller Caller
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. now may be nil.
func NewService(caller Caller, now func() time.Time, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{caller: caller, now: now, logger: logger}
}

// Register validates an account request and creates the account. Fields
// beyond the required ones are passed through unchanged; type and
// accountType default to host and owner.
func (s *Service) Register(ctx context.Context, account map[string]any) (json.RawMessage, error) {
	if errs := validation.Required(account, RegisterFields...); len(errs) > 0 {
		return nil, errs
	}

	email, _ := account["email"].(string)
	password, _ := account["password"].(string)
	if err := validation.ValidateEmail("email", email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword("password", password); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(account)+3)
	for k, v := range account {
		payload[k] = v
	}
	if isEmpty(payload["type"]) {
		payload["type"] = DefaultUserType
	}
	if isEmpty(payload["accountType"]) {
		payload["accountType"] = DefaultAccountType
	}
	payload["timestamp"] = s.now().UTC().Format(time.RFC3339Nano)

	result, err := s.caller.Call(ctx, functions.CreateAccountWithDetails, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created", "fleet_name", payload["fleetName"])
	return result, nil
}

// Inquiry is a landing page contact request. FleetSize is forwarded as
// sent, either a range label such as "10-50" or a number.
type Inquiry struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	FleetSize any    `json:"fleetSize"`
	Message   string `json:"message"`
}

type inquiryPayload struct {
	Inquiry
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Inquire validates and submits an inquiry.
func (s *Service) Inquire(ctx context.Context, in Inquiry) (json.RawMessage, error) {
	errs := validation.Required(map[string]any{
		"name":      in.Name,
		"email":     in.Email,
		"fleetSize": in.FleetSize,
		"message":   in.Message,
	}, InquiryFields...)
	if len(errs) > 0 {
		return nil, errs
	}

	result, err := s.caller.Call(ctx, functions.InquireEmail, inquiryPayload{
		Inquiry:   in,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Source:    InquirySource,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inquiry submitted", "fleet_size", in.FleetSize)
	return result, nil
}

func isEmpty(v any) bool {
	s, ok := v.(string)
	return v == nil || (ok && s == "")
}
