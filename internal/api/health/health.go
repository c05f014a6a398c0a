// Package health provides health check functionality for API components.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is an interface for components that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type component struct {
	name     string
	pinger   Pinger
	critical bool
}

// Checker performs health checks across registered components.
type Checker struct {
	components []component
	startTime  time.Time
	version    string
	timeout    time.Duration
	mu         sync.RWMutex
}

// NewChecker creates a health checker with the record store registered as
// the critical "store" component.
func NewChecker(store Pinger, version string) *Checker {
	c := &Checker{
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
	c.Register("store", store, true)
	return c
}

// Register adds a component. A failing critical component makes the
// service unhealthy; any other failure only degrades it.
func (c *Checker) Register(name string, p Pinger, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component{name: name, pinger: p, critical: critical})
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check pings every component concurrently and aggregates the results.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	components := append([]component(nil), c.components...)
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]ComponentStatus, len(components))
	var wg sync.WaitGroup
	for i, comp := range components {
		wg.Add(1)
		go func(i int, comp component) {
			defer wg.Done()
			results[i] = check(checkCtx, comp)
		}(i, comp)
	}
	wg.Wait()

	overall := StatusHealthy
	statuses := make(map[string]ComponentStatus, len(components))
	for i, comp := range components {
		statuses[comp.name] = results[i]
		if results[i].Status == StatusHealthy {
			continue
		}
		if comp.critical {
			overall = StatusUnhealthy
		} else if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return &Response{
		Status:     overall,
		Components: statuses,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

func check(ctx context.Context, comp component) ComponentStatus {
	if comp.pinger == nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: comp.name + " not configured"}
	}
	if err := comp.pinger.Ping(ctx); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: comp.name + " ping failed: " + err.Error()}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "connected"}
}

// Names returns the registered component names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.components))
	for i, comp := range c.components {
		names[i] = comp.name
	}
	sort.Strings(names)
	return names
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(response)
	}
}
