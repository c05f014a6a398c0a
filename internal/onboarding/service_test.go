package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/fleet-portal/internal/functions"
	"github.com/narvanalabs/fleet-portal/internal/validation"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

type recordingCaller struct {
	name    string
	payload map[string]any
	err     error
}

func (r *recordingCaller) Call(_ context.Context, name string, payload any) (json.RawMessage, error) {
	r.name = name
	data, _ := json.Marshal(payload)
	r.payload = nil
	_ = json.Unmarshal(data, &r.payload)
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

var now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

func validAccount() map[string]any {
	return map[string]any{
		"email":       "owner@acme.co",
		"password":    "correct-horse",
		"firstName":   "Ada",
		"lastName":    "Lovelace",
		"phone":       "+15555550100",
		"dateOfBirth": "1990-01-01",
		"fleetName":   "Acme Rentals",
		"city":        "Austin",
	}
}

func TestRegisterAppliesDefaults(t *testing.T) {
	caller := &recordingCaller{}
	svc := NewService(caller, now, logger.Discard())

	result, err := svc.Register(context.Background(), validAccount())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))

	assert.Equal(t, functions.CreateAccountWithDetails, caller.name)
	assert.Equal(t, "host", caller.payload["type"])
	assert.Equal(t, "owner", caller.payload["accountType"])
	assert.Equal(t, "Austin", caller.payload["city"])
	assert.Equal(t, "2026-10-19T08:00:00Z", caller.payload["timestamp"])
}

func TestRegisterKeepsExplicitTypes(t *testing.T) {
	caller := &recordingCaller{}
	svc := NewService(caller, now, logger.Discard())

	account := validAccount()
	account["type"] = "guest"
	account["accountType"] = "manager"

	_, err := svc.Register(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "guest", caller.payload["type"])
	assert.Equal(t, "manager", caller.payload["accountType"])
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing email", func(m map[string]any) { delete(m, "email") }, "email"},
		{"blank fleet name", func(m map[string]any) { m["fleetName"] = "" }, "fleetName"},
		{"bad email", func(m map[string]any) { m["email"] = "owner@acme" }, "email"},
		{"short password", func(m map[string]any) { m["password"] = "short" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &recordingCaller{}
			svc := NewService(caller, now, logger.Discard())
			account := validAccount()
			tt.mutate(account)

			_, err := svc.Register(context.Background(), account)
			require.Error(t, err)
			assert.Empty(t, caller.name, "function must not be called")

			var errs validation.Errors
			var single *validation.ValidationError
			switch {
			case errors.As(err, &errs):
				assert.Equal(t, tt.field, errs[0].Field)
			case errors.As(err, &single):
				assert.Equal(t, tt.field, single.Field)
			default:
				t.Fatalf("unexpected error type %T", err)
			}
		})
	}
}

func TestRegisterPropagatesFunctionErrors(t *testing.T) {
	svc := NewService(&recordingCaller{err: functions.ErrEmailInUse}, now, logger.Discard())
	_, err := svc.Register(context.Background(), validAccount())
	assert.ErrorIs(t, err, functions.ErrEmailInUse)
}

func TestInquire(t *testing.T) {
	caller := &recordingCaller{}
	svc := NewService(caller, now, logger.Discard())

	_, err := svc.Inquire(context.Background(), Inquiry{
		Name:      "Ada",
		Email:     "ada@acme.co",
		FleetSize: "10-50",
		Message:   "Tell me more",
	})
	require.NoError(t, err)

	assert.Equal(t, functions.InquireEmail, caller.name)
	assert.Equal(t, map[string]any{
		"name":      "Ada",
		"email":     "ada@acme.co",
		"fleetSize": "10-50",
		"message":   "Tell me more",
		"timestamp": "2026-10-19T08:00:00Z",
		"source":    "landing_page",
	}, caller.payload)
}

func TestInquireNumericFleetSize(t *testing.T) {
	caller := &recordingCaller{}
	svc := NewService(caller, now, logger.Discard())

	var in Inquiry
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Ada","email":"ada@acme.co","fleetSize":10,"message":"hi"}`), &in))

	_, err := svc.Inquire(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, float64(10), caller.payload["fleetSize"])
}

func TestInquireMissingFields(t *testing.T) {
	caller := &recordingCaller{}
	svc := NewService(caller, now, logger.Discard())

	_, err := svc.Inquire(context.Background(), Inquiry{Name: "Ada"})

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3)
	assert.Empty(t, caller.name)
}
