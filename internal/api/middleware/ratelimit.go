package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	apierrors "github.com/narvanalabs/fleet-portal/internal/api/errors"
	"github.com/narvanalabs/fleet-portal/internal/metrics"
)

// Rate limiter defaults.
const (
	DefaultRate       = rate.Limit(1)
	DefaultBurst      = 5
	DefaultVisitorTTL = 10 * time.Minute
)

// RateLimitConfig configures per-client limits.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per client.
	Rate rate.Limit
	// Burst is the number of requests a client may make at once.
	Burst int
	// VisitorTTL is how long an idle client's limiter is kept.
	VisitorTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a token bucket per client IP.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRateLimiter creates a RateLimiter. Zero config values take defaults;
// m may be nil.
func NewRateLimiter(cfg RateLimitConfig, m *metrics.Metrics, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.VisitorTTL <= 0 {
		cfg.VisitorTTL = DefaultVisitorTTL
	}
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Sweep drops clients idle for longer than the visitor TTL and returns how
// many were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cfg.VisitorTTL)
	removed := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps idle clients every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				rl.logger.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}

// Limit returns a middleware rejecting requests over the limit with 429.
// route labels the rejection metric.
func (rl *RateLimiter) Limit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiter(clientIP(r)).Allow() {
				rl.metrics.RequestRateLimited(route)
				retryAfter := int(math.Ceil(1 / float64(rl.cfg.Rate)))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				apierrors.WriteError(w, apierrors.NewTooManyRequestsError("Too many requests. Please try again later.").
					WithRequestID(middleware.GetReqID(r.Context())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware runs
// first so proxies are already accounted for.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
