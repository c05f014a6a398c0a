// Package verification issues identity verification sessions for renters.
package verification

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrMissingBooking is returned when no booking accompanies the request.
var ErrMissingBooking = errors.New("booking data is required")

// StatusCreated is the status of a newly issued session.
const StatusCreated = "created"

// SessionTTL is how long a session stays valid.
const SessionTTL = 24 * time.Hour

// Session is an issued verification session. Sessions are not persisted.
type Session struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service issues sessions.
type Service struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewService creates a Service. now may be nil.
func NewService(now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{now: now, newID: uuid.NewString, logger: logger}
}

// CreateSession issues a session for booking. Any value is accepted except
// an absent one: nil, false, zero or the empty string.
func (s *Service) CreateSession(booking any) (*Session, error) {
	if absent(booking) {
		return nil, ErrMissingBooking
	}

	session := &Session{
		SessionID: s.newID(),
		Status:    StatusCreated,
		ExpiresAt: s.now().UTC().Add(SessionTTL),
	}

	attrs := []any{"session_id", session.SessionID}
	switch b := booking.(type) {
	case map[string]any:
		if id, ok := b["id"].(string); ok {
			attrs = append(attrs, "booking_id", id)
		}
	case string:
		attrs = append(attrs, "booking_id", b)
	}
	s.logger.Info("verification session created", attrs...)
	return session, nil
}

func absent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case float64:
		return val == 0
	default:
		return false
	}
}
