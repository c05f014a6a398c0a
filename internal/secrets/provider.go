// Package secrets resolves named, versioned secrets for the portal. Values
// come from the process environment when present, otherwise from a remote
// Backend, and are cached for the life of the process.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LatestVersion selects the newest enabled version of a secret.
const LatestVersion = "latest"

// DefaultTimeout bounds a single remote fetch.
const DefaultTimeout = 5 * time.Second

// Backend fetches a secret version from a remote store.
type Backend interface {
	AccessSecret(ctx context.Context, name, version string) (string, error)
	Name() string
}

// LookupFunc reads local configuration. It has the os.LookupEnv signature.
type LookupFunc func(key string) (string, bool)

// Observer is notified of every resolution. It is used for metrics.
type Observer interface {
	SecretResolved(source, outcome string)
}

// Provider resolves secrets in cache → local → backend order.
type Provider struct {
	backend  Backend
	lookup   LookupFunc
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]string
}

type cacheKey struct {
	name    string
	version string
}

// Option configures a Provider.
type Option func(*Provider)

// WithLookup replaces the environment lookup.
func WithLookup(fn LookupFunc) Option {
	return func(p *Provider) {
		p.lookup = fn
	}
}

// WithTimeout sets the remote fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithObserver attaches a resolution observer.
func WithObserver(o Observer) Option {
	return func(p *Provider) {
		p.observer = o
	}
}

// NewProvider creates a Provider. backend may be nil, in which case only
// local configuration is consulted.
func NewProvider(backend Backend, logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		backend: backend,
		lookup:  os.LookupEnv,
		timeout: DefaultTimeout,
		logger:  logger,
		cache:   make(map[cacheKey]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSecret returns the value of name at version ("" means latest).
func (p *Provider) GetSecret(ctx context.Context, name, version string) (string, error) {
	if version == "" {
		version = LatestVersion
	}
	key := cacheKey{name: name, version: version}

	p.mu.RLock()
	value, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		p.observe("cache", "hit")
		return value, nil
	}

	if value, ok := p.lookup(name); ok && value != "" {
		p.store(key, value)
		p.observe("env", "hit")
		p.logger.Debug("secret resolved from environment", "secret", name)
		return value, nil
	}

	if p.backend == nil {
		p.observe("env", "miss")
		return "", newError(name, version, KindNotFound, nil,
			fmt.Sprintf("Set the %s environment variable", name),
			"Or configure a secret backend (SECRET_BACKEND)",
		)
	}

	value, err := p.fetch(ctx, name, version)
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			p.logger.Error("failed to resolve secret", serr.LogAttrs()...)
		}
		p.observe(p.backend.Name(), "error")
		return "", err
	}

	p.store(key, value)
	p.observe(p.backend.Name(), "hit")
	p.logger.Info("secret resolved", "secret", name, "version", version, "backend", p.backend.Name())
	return value, nil
}

// GetSecrets resolves several secrets at the same version. Names that fail
// to resolve are logged and omitted from the result.
func (p *Provider) GetSecrets(ctx context.Context, names []string, version string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		value, err := p.GetSecret(ctx, name, version)
		if err != nil {
			p.logger.Warn("skipping secret", "secret", name, "error", err)
			continue
		}
		out[name] = value
	}
	return out
}

// SecretKey adapts a Provider into a key source for a single secret.
func (p *Provider) SecretKey(name, version string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		value, err := p.GetSecret(ctx, name, version)
		if err != nil {
			return nil, err
		}
		return []byte(value), nil
	}
}

func (p *Provider) fetch(ctx context.Context, name, version string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, err := p.backend.AccessSecret(ctx, name, version)
	if err == nil {
		return value, nil
	}

	var serr *Error
	if errors.As(err, &serr) {
		return "", serr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "", newError(name, version, KindUnavailable, err,
			fmt.Sprintf("The %s backend did not answer within %s", p.backend.Name(), p.timeout),
		)
	}
	return "", newError(name, version, KindUnavailable, err)
}

func (p *Provider) store(key cacheKey, value string) {
	p.mu.Lock()
	if _, exists := p.cache[key]; !exists {
		p.cache[key] = value
	}
	p.mu.Unlock()
}

func (p *Provider) observe(source, outcome string) {
	if p.observer != nil {
		p.observer.SecretResolved(source, outcome)
	}
}
