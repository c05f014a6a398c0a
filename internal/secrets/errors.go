package secrets

import (
	"errors"
	"fmt"
)

// Kind classifies a secret resolution failure.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindUnavailable  Kind = "unavailable"
	KindInvalid      Kind = "invalid"
)

var (
	// ErrNotFound is matched by errors.Is for KindNotFound failures.
	ErrNotFound = errors.New("secret not found")
	// ErrAccessDenied is matched by errors.Is for KindAccessDenied failures.
	ErrAccessDenied = errors.New("secret access denied")
	// ErrUnavailable is matched by errors.Is for KindUnavailable failures.
	ErrUnavailable = errors.New("secret store unavailable")
	// ErrInvalid is matched by errors.Is for KindInvalid failures.
	ErrInvalid = errors.New("invalid secret")
)

// Error describes why a secret could not be resolved. Hints carry
// operator-facing troubleshooting steps and are never sent to clients.
type Error struct {
	Name    string
	Version string
	Kind    Kind
	Hints   []string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("secret %s (version %s): %s", e.Name, e.Version, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindAccessDenied:
		return target == ErrAccessDenied
	case KindUnavailable:
		return target == ErrUnavailable
	case KindInvalid:
		return target == ErrInvalid
	}
	return false
}

// LogAttrs returns the error as slog key/value pairs.
func (e *Error) LogAttrs() []any {
	attrs := []any{
		"secret", e.Name,
		"version", e.Version,
		"kind", string(e.Kind),
	}
	if len(e.Hints) > 0 {
		attrs = append(attrs, "hints", e.Hints)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	return attrs
}

func newError(name, version string, kind Kind, err error, hints ...string) *Error {
	return &Error{
		Name:    name,
		Version: version,
		Kind:    kind,
		Hints:   hints,
		Err:     err,
	}
}
