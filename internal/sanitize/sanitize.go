// Package sanitize strips operator-private fields from records before they
// cross the API boundary. Every function mutates and returns its argument,
// accepts nil, and is idempotent.
package sanitize

import "github.com/narvanalabs/fleet-portal/internal/models"

// Vehicle removes maintenance, creator, expense group, location and fleet
// reference data.
func Vehicle(v *models.Vehicle) *models.Vehicle {
	if v == nil {
		return nil
	}
	v.FleetRef = ""
	v.Extra.Delete(models.VehiclePrivateFields...)
	return v
}

// Fleet removes billing, role, settings and integration data.
func Fleet(f *models.Fleet) *models.Fleet {
	if f == nil {
		return nil
	}
	f.ConnectedStripeAccountID = ""
	f.Extra.Delete(models.FleetPrivateFields...)
	return f
}

// Booking removes the stored password and sanitizes the embedded vehicle
// and fleet.
func Booking(b *models.Booking) *models.Booking {
	if b == nil {
		return nil
	}
	b.Password = ""
	b.Extra.Delete(models.BookingPrivateFields...)
	Vehicle(b.Vehicle)
	Fleet(b.Fleet)
	return b
}

// Agreement removes the stored password and sanitizes the parent booking.
func Agreement(a *models.Agreement) *models.Agreement {
	if a == nil {
		return nil
	}
	a.Password = ""
	a.Extra.Delete(models.AgreementPrivateFields...)
	Booking(a.Booking)
	return a
}

// Vehicles sanitizes each vehicle in place.
func Vehicles(vs []models.Vehicle) []models.Vehicle {
	for i := range vs {
		Vehicle(&vs[i])
	}
	return vs
}
