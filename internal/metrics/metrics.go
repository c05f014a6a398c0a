// Package metrics defines the portal's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleet_portal"

// Authentication outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeMismatch    = "mismatch"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	AuthAttempts         *prometheus.CounterVec
	SecretResolutions    *prometheus.CounterVec
	ViewedUpdateFailures prometheus.Counter
	FunctionCalls        *prometheus.CounterVec
	RateLimited          *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Booking and agreement authentication attempts by outcome",
			},
			[]string{"kind", "outcome"},
		),
		SecretResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "secret_resolutions_total",
				Help:      "Secret lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ViewedUpdateFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agreement_viewed_update_failures_total",
				Help:      "Agreement viewed-flag updates that failed after a successful authentication",
			},
		),
		FunctionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "function_calls_total",
				Help:      "Callable function invocations by function and outcome",
			},
			[]string{"function", "outcome"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.AuthAttempts,
			m.SecretResolutions,
			m.ViewedUpdateFailures,
			m.FunctionCalls,
			m.RateLimited,
			m.HTTPRequestDuration,
		)
	}
	return m
}

// AuthAttempt records one authentication attempt.
func (m *Metrics) AuthAttempt(kind, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(kind, outcome).Inc()
}

// SecretResolved records a secret lookup.
func (m *Metrics) SecretResolved(source, outcome string) {
	if m == nil {
		return
	}
	m.SecretResolutions.WithLabelValues(source, outcome).Inc()
}

// ViewedUpdateFailed records a failed agreement viewed update.
func (m *Metrics) ViewedUpdateFailed() {
	if m == nil {
		return
	}
	m.ViewedUpdateFailures.Inc()
}

// FunctionCalled records a callable function invocation.
func (m *Metrics) FunctionCalled(name, outcome string) {
	if m == nil {
		return
	}
	m.FunctionCalls.WithLabelValues(name, outcome).Inc()
}

// RequestRateLimited records a rejected request.
func (m *Metrics) RequestRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

// ObserveRequest records an HTTP request's latency.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
