// Package validation checks portal request fields.
package validation

import (
	"fmt"
	"strings"
)

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Message string

	missing bool
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors collects field errors. A nil or empty Errors is not an error.
type Errors []ValidationError

// Add records an error for field.
func (v *Errors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// Merge appends err when it is a *ValidationError and reports whether it was.
func (v *Errors) Merge(err error) bool {
	if ve, ok := err.(*ValidationError); ok && ve != nil {
		*v = append(*v, *ve)
		return true
	}
	return false
}

// Message summarizes v for clients. When every entry is a missing field
// the fields are listed together.
func (v Errors) Message() string {
	if len(v) == 0 {
		return "validation failed"
	}
	for _, e := range v {
		if !e.missing {
			return e.Message
		}
	}
	return MissingMessage(v)
}

// Err returns v as an error, or nil when empty.
func (v Errors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v Errors) Error() string {
	switch len(v) {
	case 0:
		return "validation failed"
	case 1:
		return v[0].Message
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return fmt.Sprintf("%d validation errors: %s", len(v), strings.Join(parts, "; "))
}
