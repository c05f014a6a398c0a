// Package vanity serves fleet brand pages together with the fleet's
// vehicles.
package vanity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/fleet-portal/internal/models"
	"github.com/narvanalabs/fleet-portal/internal/sanitize"
	"github.com/narvanalabs/fleet-portal/internal/store"
)

// Errors returned by the service.
var (
	ErrPageNotFound       = errors.New("vanity page not found")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// DefaultTimeout bounds each store round trip.
const DefaultTimeout = 5 * time.Second

// Service reads vanity pages.
type Service struct {
	records store.RecordStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates a Service. A zero timeout selects DefaultTimeout.
func NewService(records store.RecordStore, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{records: records, timeout: timeout, logger: logger}
}

// Get returns the page with its fleet's sanitized vehicles. A page without
// a fleet reference is returned with no vehicles.
func (s *Service) Get(ctx context.Context, id string) (*models.VanityPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.records.Get(ctx, models.CollectionVanityPages, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		s.logger.Error("loading vanity page", "page_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	var page models.VanityPage
	if err := models.Decode(doc, &page); err != nil {
		return nil, fmt.Errorf("decoding vanity page %s: %w", id, err)
	}

	page.Vehicles = []models.Vehicle{}
	if page.FleetRef == "" {
		s.logger.Warn("vanity page has no fleet", "page_id", id)
		return &page, nil
	}

	docs, err := s.records.Query(ctx, models.CollectionVehicles, "fleetRef", page.FleetRef)
	if err != nil {
		s.logger.Error("loading fleet vehicles", "page_id", id, "fleet_id", page.FleetRef, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	for _, d := range docs {
		var v models.Vehicle
		if err := models.Decode(d, &v); err != nil {
			s.logger.Warn("skipping undecodable vehicle", "vehicle_id", d[store.IDField], "error", err)
			continue
		}
		page.Vehicles = append(page.Vehicles, v)
	}
	sanitize.Vehicles(page.Vehicles)

	return &page, nil
}
