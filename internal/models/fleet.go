// Package models defines the records the portal reads from the document store.
package models

// Collection names in the document store.
const (
	CollectionBookings    = "bookings"
	CollectionAgreements  = "agreements"
	CollectionFleets      = "fleets"
	CollectionVehicles    = "vehicles"
	CollectionVanityPages = "vanity-pages"
)

// AgreementsCollection returns the path of the agreements nested under a booking.
func AgreementsCollection(bookingID string) string {
	return CollectionBookings + "/" + bookingID + "/" + CollectionAgreements
}

// FleetPrivateFields are operator-only fleet keys that never leave the server.
var FleetPrivateFields = []string{
	"charges_enabled",
	"payouts_enabled",
	"roles",
	"settings",
	"topics",
	"connectedStripeAccountId",
	"integrations",
	"lasal",
}

// Fleet is a rental operator.
type Fleet struct {
	ID                       string `json:"id,omitempty"`
	Name                     string `json:"name,omitempty"`
	Email                    string `json:"email,omitempty"`
	Phone                    string `json:"phone,omitempty"`
	ConnectedStripeAccountID string `json:"connectedStripeAccountId,omitempty"`
	Extra                    Fields `json:"-"`
}

// MarshalJSON emits modelled fields together with Extra.
func (f Fleet) MarshalJSON() ([]byte, error) {
	type plain Fleet
	return encodeWithExtra(plain(f), f.Extra)
}

// UnmarshalJSON captures unmodelled keys into Extra.
func (f *Fleet) UnmarshalJSON(data []byte) error {
	type plain Fleet
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*f = Fleet(p)
	f.Extra = extra
	return nil
}
