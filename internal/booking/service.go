// Package booking implements password-gated access to bookings and rental
// agreements.
//
// Both flows follow the same sequence: look the record up, decrypt the
// supplied and the stored password, compare, then either return a
// sanitized copy or reject the attempt.
package booking

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/fleet-portal/internal/cipher"
	"github.com/narvanalabs/fleet-portal/internal/metrics"
	"github.com/narvanalabs/fleet-portal/internal/models"
	"github.com/narvanalabs/fleet-portal/internal/sanitize"
	"github.com/narvanalabs/fleet-portal/internal/secrets"
	"github.com/narvanalabs/fleet-portal/internal/store"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

// Errors returned by the service.
var (
	ErrBookingNotFound       = errors.New("booking not found")
	ErrAgreementNotFound     = errors.New("agreement not found")
	ErrInvalidPasswordFormat = errors.New("password is not a valid encrypted value")
	ErrPasswordMismatch      = errors.New("password does not match")
	ErrCorruptRecord         = errors.New("stored password cannot be decrypted")
	ErrConfiguration         = errors.New("encryption is not configured")
	ErrServiceUnavailable    = errors.New("service temporarily unavailable")
)

// DefaultTimeout bounds each store round trip.
const DefaultTimeout = 5 * time.Second

const (
	kindBooking   = "booking"
	kindAgreement = "agreement"
)

// Decrypter decrypts "iv:ciphertext" strings.
type Decrypter interface {
	Decrypt(ctx context.Context, encoded string) (string, error)
}

// Config holds service settings.
type Config struct {
	// Timeout bounds each store read and the viewed update.
	Timeout time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service authenticates booking and agreement access.
type Service struct {
	records store.RecordStore
	cipher  Decrypter
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a Service. m may be nil.
func NewService(cfg *Config, records store.RecordStore, c Decrypter, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Service{
		records: records,
		cipher:  c,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		metrics: m,
		logger:  logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AuthenticateBooking returns the booking with its fleet when password
// matches the booking's stored password. The result carries no password and
// no operator-private vehicle or fleet fields.
func (s *Service) AuthenticateBooking(ctx context.Context, bookingID, password string) (*models.Booking, error) {
	ctx = logger.ContextWithBookingID(ctx, bookingID)
	log := logger.FromContext(ctx, s.logger)

	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		s.record(kindBooking, err)
		return nil, err
	}

	if b.FleetRef != "" {
		fleet, err := s.loadFleet(ctx, b.FleetRef)
		switch {
		case err == nil:
			b.Fleet = fleet
		case errors.Is(err, store.ErrNotFound):
			log.Warn("booking references a missing fleet", "fleet_ref", b.FleetRef)
		default:
			s.record(kindBooking, err)
			return nil, err
		}
	} else {
		log.Warn("booking has no fleet reference")
	}

	if err := s.verify(ctx, password, b.Password); err != nil {
		s.record(kindBooking, err)
		log.Info("booking authentication rejected", "reason", err)
		return nil, err
	}

	s.record(kindBooking, nil)
	log.Info("booking authenticated")
	return sanitize.Booking(b), nil
}

// AuthenticateAgreement returns the agreement nested under bookingID when
// password matches the agreement's stored password. On success the
// agreement is marked as viewed; a failed update is logged and does not
// fail the call.
func (s *Service) AuthenticateAgreement(ctx context.Context, bookingID, password, agreementID string) (*models.Agreement, error) {
	ctx = logger.ContextWithBookingID(ctx, bookingID)
	log := logger.FromContext(ctx, s.logger).With("agreement_id", agreementID)
	collection := models.AgreementsCollection(bookingID)

	doc, err := s.get(ctx, collection, agreementID)
	if err != nil {
		err = notFoundAs(err, ErrAgreementNotFound)
		s.record(kindAgreement, err)
		return nil, err
	}

	var a models.Agreement
	if err := models.Decode(doc, &a); err != nil {
		log.Error("failed to decode agreement", "error", err)
		s.record(kindAgreement, ErrCorruptRecord)
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if a.BookingID == "" {
		a.BookingID = bookingID
	}

	if err := s.verify(ctx, password, a.Password); err != nil {
		s.record(kindAgreement, err)
		log.Info("agreement authentication rejected", "reason", err)
		return nil, err
	}

	viewedAt := s.now().UTC()
	if err := s.markViewed(ctx, collection, agreementID, viewedAt); err != nil {
		s.metrics.ViewedUpdateFailed()
		log.Error("failed to mark agreement as viewed", "error", err)
	} else {
		a.CustomerViewed = true
		a.DateViewed = &viewedAt
	}

	b, err := s.loadBooking(ctx, bookingID)
	switch {
	case err == nil:
		a.Booking = b
	case errors.Is(err, ErrBookingNotFound):
		log.Warn("agreement references a missing booking")
	default:
		s.record(kindAgreement, err)
		return nil, err
	}

	s.record(kindAgreement, nil)
	log.Info("agreement authenticated")
	return sanitize.Agreement(&a), nil
}

// verify decrypts both passwords and compares them in constant time.
func (s *Service) verify(ctx context.Context, supplied, stored string) error {
	if !cipher.LooksEncrypted(supplied) {
		return ErrInvalidPasswordFormat
	}

	attempted, err := s.cipher.Decrypt(ctx, supplied)
	if err != nil {
		return s.cipherError(err, ErrInvalidPasswordFormat)
	}

	if stored == "" {
		s.logger.Warn("record has no stored password")
		return ErrPasswordMismatch
	}

	expected, err := s.cipher.Decrypt(ctx, stored)
	if err != nil {
		return s.cipherError(err, ErrCorruptRecord)
	}

	if subtle.ConstantTimeCompare([]byte(attempted), []byte(expected)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// cipherError separates key problems from malformed input.
func (s *Service) cipherError(err, malformed error) error {
	switch {
	case errors.Is(err, cipher.ErrDecryption):
		return malformed
	case errors.Is(err, secrets.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("cipher key unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		s.logger.Error("cipher key misconfigured", "error", err)
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
}

func (s *Service) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	doc, err := s.get(ctx, models.CollectionBookings, id)
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}

	var b models.Booking
	if err := models.Decode(doc, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &b, nil
}

func (s *Service) loadFleet(ctx context.Context, id string) (*models.Fleet, error) {
	doc, err := s.get(ctx, models.CollectionFleets, id)
	if err != nil {
		return nil, err
	}

	var f models.Fleet
	if err := models.Decode(doc, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &f, nil
}

func (s *Service) markViewed(ctx context.Context, collection, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.records.Update(ctx, collection, id, store.Document{
		"customerViewed": true,
		"dateViewed":     at,
	})
}

// get reads one document under the service timeout. Store failures other
// than a missing record surface as ErrServiceUnavailable.
func (s *Service) get(ctx context.Context, collection, id string) (store.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.records.Get(ctx, collection, id)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	s.logger.Error("store read failed", "collection", collection, "id", id, "error", err)
	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func notFoundAs(err, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return sentinel
	}
	return err
}

func (s *Service) record(kind string, err error) {
	s.metrics.AuthAttempt(kind, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrPasswordMismatch):
		return metrics.OutcomeMismatch
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrAgreementNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrInvalidPasswordFormat):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrServiceUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
