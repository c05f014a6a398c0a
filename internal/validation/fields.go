package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// emailRegex accepts anything of the form local@domain.tld without spaces.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MinPasswordLength is the shortest accepted account password.
const MinPasswordLength = 8

// MaxRecordIDLength is the longest accepted record identifier in bytes.
const MaxRecordIDLength = 1500

// ValidateEmail checks the email format.
func ValidateEmail(field, email string) error {
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: field, Message: "Invalid email format"}
	}
	return nil
}

// ValidatePassword checks the account password length in characters.
func ValidatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength),
		}
	}
	return nil
}

// ValidateRecordID checks that id can address a single document:
// non-empty, no path separators, not "." or "..", at most 1500 bytes.
func ValidateRecordID(field, id string) error {
	switch {
	case id == "":
		return &ValidationError{Field: field, Message: field + " is required"}
	case len(id) > MaxRecordIDLength:
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be %d bytes or less", field, MaxRecordIDLength)}
	case strings.Contains(id, "/"), id == ".", id == "..":
		return &ValidationError{Field: field, Message: field + " is not a valid identifier"}
	}
	return nil
}

// Required reports every listed field whose value is missing. A value is
// missing when it is absent, nil, or a blank string.
func Required(values map[string]any, fields ...string) Errors {
	var errs Errors
	for _, f := range fields {
		if isBlank(values[f]) {
			errs = append(errs, ValidationError{Field: f, Message: f + " is required", missing: true})
		}
	}
	return errs
}

// MissingMessage formats the missing-field message for errs.
func MissingMessage(errs Errors) string {
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = e.Field
	}
	return "Missing required fields: " + strings.Join(names, ", ")
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
