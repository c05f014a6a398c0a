package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/fleet-portal/internal/booking"
	"github.com/narvanalabs/fleet-portal/internal/cipher"
	"github.com/narvanalabs/fleet-portal/internal/functions"
	"github.com/narvanalabs/fleet-portal/internal/metrics"
	"github.com/narvanalabs/fleet-portal/internal/models"
	"github.com/narvanalabs/fleet-portal/internal/onboarding"
	"github.com/narvanalabs/fleet-portal/internal/store"
	"github.com/narvanalabs/fleet-portal/internal/store/memory"
	"github.com/narvanalabs/fleet-portal/internal/vanity"
	"github.com/narvanalabs/fleet-portal/internal/verification"
	"github.com/narvanalabs/fleet-portal/pkg/config"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

type testEnv struct {
	handler http.Handler
	cipher  *cipher.Cipher
	store   *memory.Store

	mu    sync.Mutex
	calls []string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{}

	env.cipher = cipher.New(cipher.StaticKey(bytes.Repeat([]byte{7}, cipher.KeyLength)), logger.Discard())
	encrypt := func(s string) string {
		out, err := env.cipher.Encrypt(ctx, s)
		require.NoError(t, err)
		return out
	}

	env.store = memory.New()
	require.NoError(t, env.store.Seed(ctx, map[string]map[string]store.Document{
		models.CollectionBookings: {
			"b1": {"password": encrypt("secret123"), "fleetRef": "f1"},
		},
		models.CollectionFleets: {
			"f1": {"name": "Acme", "connectedStripeAccountId": "acct_1"},
		},
		models.AgreementsCollection("b1"): {
			"a1": {"password": encrypt("secret123"), "customerViewed": false},
		},
		models.CollectionVanityPages: {
			"acme": {"fleetRef": "f1", "headline": "Drive Acme"},
		},
		models.CollectionVehicles: {
			"v1": {"fleetRef": "f1", "make": "BMW", "maintenance": []any{"oil"}},
		},
	}))

	functionsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.calls = append(env.calls, strings.TrimPrefix(r.URL.Path, "/"))
		env.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/"+functions.InquireEmail {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"status":"NOT_FOUND","message":"not found"}}`))
			return
		}
		w.Write([]byte(`{"result":{"uid":"u1"}}`))
	}))
	t.Cleanup(functionsSrv.Close)

	cfg := config.Defaults()
	cfg.HTTP.AuthRateLimit = 100
	cfg.HTTP.AuthRateBurst = 100
	if mutate != nil {
		mutate(cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.Discard()
	fn := functions.NewClient(&functions.Config{BaseURL: functionsSrv.URL, Timeout: time.Second}, m, log)

	srv := NewServer(cfg, Deps{
		Bookings:     booking.NewService(nil, env.store, env.cipher, m, log),
		Onboarding:   onboarding.NewService(fn, nil, log),
		Verification: verification.NewService(nil, log),
		Vanity:       vanity.NewService(env.store, 0, log),
		Store:        env.store,
		Gatherer:     reg,
		Metrics:      m,
	}, log)
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func (e *testEnv) encrypt(t *testing.T, s string) string {
	out, err := e.cipher.Encrypt(context.Background(), s)
	require.NoError(t, err)
	return out
}

func TestAuthenticateBookingEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathAuthenticateBooking, map[string]string{
		"bookingId": "b1",
		"password":  env.encrypt(t, "secret123"),
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "b1", data["id"])
	assert.NotContains(t, data, "password")
	fleet := data["fleet"].(map[string]any)
	assert.NotContains(t, fleet, "connectedStripeAccountId")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAuthenticateBookingEndpointErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"wrong password", map[string]string{"bookingId": "b1", "password": env.encrypt(t, "wrong")}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown booking", map[string]string{"bookingId": "nope", "password": env.encrypt(t, "secret123")}, http.StatusNotFound, "NOT_FOUND"},
		{"missing password", map[string]string{"bookingId": "b1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"plaintext password", map[string]string{"bookingId": "b1", "password": "secret123"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"path in id", map[string]string{"bookingId": "b1/agreements", "password": "x"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := env.do(t, http.MethodPost, PathAuthenticateBooking, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestAuthenticateBookingMissingFieldsMessage(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathAuthenticateBooking, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing required fields: bookingId, password", body["message"])
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{PathAuthenticateBooking, PathAuthenticateAgreement, PathRegister, PathInquire, PathVerificationSession} {
		rr, body := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, path)
		assert.Equal(t, "METHOD_NOT_ALLOWED", body["code"], path)
	}
}

func TestAuthenticateAgreementEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathAuthenticateAgreement, map[string]string{
		"bookingId":   "b1",
		"agreementId": "a1",
		"password":    env.encrypt(t, "secret123"),
	})
	require.Equal(t, http.StatusOK, rr.Code)

	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["customerViewed"])
	assert.NotContains(t, data, "password")

	doc, err := env.store.Get(context.Background(), models.AgreementsCollection("b1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, true, doc["customerViewed"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.HTTP.AuthRateLimit = 0.001
		c.HTTP.AuthRateBurst = 2
	})

	body := map[string]string{"bookingId": "b1", "password": "x"}
	for i := 0; i < 2; i++ {
		rr, _ := env.do(t, http.MethodPost, PathAuthenticateBooking, body)
		assert.NotEqual(t, http.StatusTooManyRequests, rr.Code)
	}
	rr, resp := env.do(t, http.MethodPost, PathAuthenticateBooking, body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", resp["code"])
}

func authenticateFrom(t *testing.T, env *testEnv, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, PathAuthenticateBooking,
		strings.NewReader(`{"bookingId":"b1","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.RemoteAddr = "192.0.2.1:1234"
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.HTTP.AuthRateLimit = 0.001
		c.HTTP.AuthRateBurst = 1
	})

	assert.NotEqual(t, http.StatusTooManyRequests, authenticateFrom(t, env, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, authenticateFrom(t, env, "198.51.100.2"))
}

func TestRateLimitUsesForwardedForBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.HTTP.AuthRateLimit = 0.001
		c.HTTP.AuthRateBurst = 1
		c.HTTP.TrustProxyHeaders = true
	})

	assert.NotEqual(t, http.StatusTooManyRequests, authenticateFrom(t, env, "198.51.100.1"))
	assert.NotEqual(t, http.StatusTooManyRequests, authenticateFrom(t, env, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, authenticateFrom(t, env, "198.51.100.1"))
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathRegister, map[string]string{
		"email":       "owner@acme.co",
		"password":    "correct-horse",
		"firstName":   "Ada",
		"lastName":    "Lovelace",
		"phone":       "+15555550100",
		"dateOfBirth": "1990-01-01",
		"fleetName":   "Acme",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Account created successfully", body["message"])
	assert.Equal(t, map[string]any{"uid": "u1"}, body["data"])
	env.mu.Lock()
	assert.Equal(t, []string{functions.CreateAccountWithDetails}, env.calls)
	env.mu.Unlock()

	rr, body = env.do(t, http.MethodPost, PathRegister, map[string]string{"email": "owner@acme.co"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["message"], "Missing required fields: password")
}

func TestInquireFunctionMissing(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathInquire, map[string]string{
		"name":      "Ada",
		"email":     "ada@acme.co",
		"fleetSize": "5",
		"message":   "hi",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])

	rr, body = env.do(t, http.MethodPost, PathInquire, map[string]any{
		"name":      "Ada",
		"email":     "ada@acme.co",
		"fleetSize": 10,
		"message":   "hi",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "numeric fleetSize must reach the function")
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])
}

func TestVerificationSessionEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodPost, PathVerificationSession, map[string]any{
		"booking": map[string]any{"id": "b1"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "created", data["status"])
	assert.NotEmpty(t, data["sessionId"])

	for _, booking := range []any{map[string]any{}, "b1"} {
		rr, _ = env.do(t, http.MethodPost, PathVerificationSession, map[string]any{"booking": booking})
		assert.Equal(t, http.StatusOK, rr.Code, "%#v", booking)
	}

	for _, req := range []map[string]any{{}, {"booking": nil}, {"booking": ""}} {
		rr, body = env.do(t, http.MethodPost, PathVerificationSession, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Missing required field: booking", body["message"])
	}
}

func TestVanityPageEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodGet, "/api/v1/vanity-pages/acme", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Drive Acme", data["headline"])
	vehicles := data["vehicles"].([]any)
	require.Len(t, vehicles, 1)
	assert.NotContains(t, vehicles[0], "maintenance")

	rr, _ = env.do(t, http.MethodGet, "/api/v1/vanity-pages/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body["status"])

	env.do(t, http.MethodPost, PathAuthenticateBooking, map[string]string{"bookingId": "b1", "password": env.encrypt(t, "secret123")})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mr := httptest.NewRecorder()
	env.handler.ServeHTTP(mr, req)
	assert.Equal(t, http.StatusOK, mr.Code)
	assert.Contains(t, mr.Body.String(), "fleet_portal_auth_attempts_total")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rr, body := env.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
