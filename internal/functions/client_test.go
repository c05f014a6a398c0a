package functions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/fleet-portal/internal/metrics"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	return NewClient(&Config{BaseURL: srv.URL + "/"}, m, logger.Discard()), m
}

func TestCallSendsDataEnvelope(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"uid":"u1"}}`))
	})

	result, err := c.Call(context.Background(), CreateAccountWithDetails, map[string]any{"email": "a@b.co"})
	require.NoError(t, err)

	assert.Equal(t, "/"+CreateAccountWithDetails, gotPath)
	assert.Equal(t, map[string]any{"data": map[string]any{"email": "a@b.co"}}, gotBody)
	assert.JSONEq(t, `{"uid":"u1"}`, string(result))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunctionCalls.WithLabelValues(CreateAccountWithDetails, metrics.OutcomeSuccess)))
}

func TestCallErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"missing function", http.StatusNotFound, ``, ErrFunctionNotFound},
		{"not found status", http.StatusNotFound, `{"error":{"status":"NOT_FOUND","message":"Function not found"}}`, ErrFunctionNotFound},
		{"email in use code", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"x","details":{"code":"auth/email-already-in-use"}}}`, ErrEmailInUse},
		{"already exists", http.StatusConflict, `{"error":{"status":"ALREADY_EXISTS","message":"exists"}}`, ErrEmailInUse},
		{"weak password", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"x","details":{"code":"auth/weak-password"}}}`, ErrWeakPassword},
		{"invalid email", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"x","details":{"code":"auth/invalid-email"}}}`, ErrInvalidEmail},
		{"invalid argument", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"bad booking"}}`, ErrInvalidArgument},
		{"permission denied", http.StatusForbidden, `{"error":{"status":"PERMISSION_DENIED","message":"no"}}`, ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Call(context.Background(), InquireEmail, map[string]any{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCallUnknownErrorIsCallError(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"status":"INTERNAL","message":"boom"}}`))
	})

	_, err := c.Call(context.Background(), InquireEmail, nil)

	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "INTERNAL", ce.Status)
	assert.Equal(t, http.StatusInternalServerError, ce.HTTPStatus)
	assert.Contains(t, ce.Error(), "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunctionCalls.WithLabelValues(InquireEmail, metrics.OutcomeError)))
}

func TestCallWithoutBaseURL(t *testing.T) {
	c := NewClient(&Config{}, nil, logger.Discard())
	_, err := c.Call(context.Background(), InquireEmail, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
