package shutdown

import (
	"context"
	"io"
)

// Shutdowner is implemented by *http.Server and the API server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ServerComponent drains a server: it stops accepting connections and
// waits for in-flight requests.
type ServerComponent struct {
	name   string
	server Shutdowner
}

// NewServerComponent creates a new server shutdown component.
func NewServerComponent(name string, server Shutdowner) *ServerComponent {
	return &ServerComponent{name: name, server: server}
}

// Name returns the component name.
func (c *ServerComponent) Name() string { return c.name }

// Shutdown drains the server.
func (c *ServerComponent) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

// CloserComponent wraps an io.Closer such as a record store.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a new closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

// Name returns the component name.
func (c *CloserComponent) Name() string { return c.name }

// Shutdown closes the underlying resource.
func (c *CloserComponent) Shutdown(context.Context) error {
	return c.closer.Close()
}

// FuncComponent wraps a shutdown function as a component.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

// Name returns the component name.
func (c *FuncComponent) Name() string { return c.name }

// Shutdown calls the wrapped function.
func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}
