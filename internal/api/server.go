// Package api provides the HTTP API server for the fleet portal.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	apierrors "github.com/narvanalabs/fleet-portal/internal/api/errors"
	"github.com/narvanalabs/fleet-portal/internal/api/handlers"
	"github.com/narvanalabs/fleet-portal/internal/api/health"
	"github.com/narvanalabs/fleet-portal/internal/api/middleware"
	"github.com/narvanalabs/fleet-portal/internal/metrics"
	"github.com/narvanalabs/fleet-portal/internal/verification"
	"github.com/narvanalabs/fleet-portal/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Route paths.
const (
	PathAuthenticateBooking   = "/api/v1/authenticate-booking"
	PathAuthenticateAgreement = "/api/v1/authenticate-agreement"
	PathRegister              = "/api/v1/register"
	PathInquire               = "/api/v1/inquire"
	PathVerificationSession   = "/api/v1/verification-session"
	PathVanityPage            = "/api/v1/vanity-pages/{pageID}"
)

// Deps are the services the server routes to.
type Deps struct {
	Bookings     handlers.Authenticator
	Onboarding   handlers.Onboarder
	Verification *verification.Service
	Vanity       handlers.VanityPages
	Store        health.Pinger
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	handler       http.Handler
	httpServer    *http.Server
	deps          Deps
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
	limiter       *middleware.RateLimiter
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:          deps,
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(deps.Store, Version),
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			Rate:  rate.Limit(cfg.HTTP.AuthRateLimit),
			Burst: cfg.HTTP.AuthRateBurst,
		}, deps.Metrics, logger),
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	if s.config.HTTP.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger(s.logger, s.deps.Metrics))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, apierrors.NewNotFoundError("Not Found").
			WithRequestID(chimiddleware.GetReqID(r.Context())))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, apierrors.NewMethodNotAllowedError().
			WithRequestID(chimiddleware.GetReqID(r.Context())))
	})

	r.Get("/health", s.healthChecker.Handler())
	if s.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	bookingHandler := handlers.NewBookingHandler(s.deps.Bookings, s.logger)
	r.With(s.limiter.Limit("authenticate-booking")).Post(PathAuthenticateBooking, bookingHandler.AuthenticateBooking)
	r.With(s.limiter.Limit("authenticate-agreement")).Post(PathAuthenticateAgreement, bookingHandler.AuthenticateAgreement)

	onboardingHandler := handlers.NewOnboardingHandler(s.deps.Onboarding, s.logger)
	r.Post(PathRegister, onboardingHandler.Register)
	r.Post(PathInquire, onboardingHandler.Inquire)

	verificationHandler := handlers.NewVerificationHandler(s.deps.Verification, s.logger)
	r.Post(PathVerificationSession, verificationHandler.CreateSession)

	vanityHandler := handlers.NewVanityHandler(s.deps.Vanity, s.logger)
	r.Get(PathVanityPage, vanityHandler.Get)

	s.router = r
	s.handler = cors.New(cors.Options{
		AllowedOrigins: s.config.HTTP.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         600,
	}).Handler(r)
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.limiter.Run(sweepCtx, time.Minute)

	s.logger.Info("starting API server", "addr", addr, "version", Version, "health_checks", s.healthChecker.Names())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
