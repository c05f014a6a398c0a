package models

import "time"

// BookingPrivateFields are booking keys stripped before a booking is returned.
var BookingPrivateFields = []string{"password"}

// AgreementPrivateFields are agreement keys stripped before an agreement is returned.
var AgreementPrivateFields = []string{"password"}

// Customer is the renter snapshot embedded in a booking.
type Customer struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Extra     Fields `json:"-"`
}

func (c Customer) MarshalJSON() ([]byte, error) {
	type plain Customer
	return encodeWithExtra(plain(c), c.Extra)
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	type plain Customer
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*c = Customer(p)
	c.Extra = extra
	return nil
}

// Booking links a renter, a vehicle and a fleet. Password holds the
// encrypted "iv:ciphertext" form of the manage-booking password.
type Booking struct {
	ID       string    `json:"id,omitempty"`
	Password string    `json:"password,omitempty"`
	FleetRef string    `json:"fleetRef,omitempty"`
	Vehicle  *Vehicle  `json:"vehicle,omitempty"`
	Customer *Customer `json:"customer,omitempty"`
	Fleet    *Fleet    `json:"fleet,omitempty"`
	Extra    Fields    `json:"-"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	type plain Booking
	return encodeWithExtra(plain(b), b.Extra)
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*b = Booking(p)
	b.Extra = extra
	return nil
}

// Section is one titled block of agreement text.
type Section struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Extra   Fields `json:"-"`
}

func (s Section) MarshalJSON() ([]byte, error) {
	type plain Section
	return encodeWithExtra(plain(s), s.Extra)
}

func (s *Section) UnmarshalJSON(data []byte) error {
	type plain Section
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*s = Section(p)
	s.Extra = extra
	return nil
}

// Agreement is a signable document stored under a booking.
type Agreement struct {
	ID             string     `json:"id,omitempty"`
	BookingID      string     `json:"bookingId,omitempty"`
	Password       string     `json:"password,omitempty"`
	CustomerViewed bool       `json:"customerViewed"`
	DateViewed     *time.Time `json:"dateViewed,omitempty"`
	Sections       []Section  `json:"sections,omitempty"`
	Booking        *Booking   `json:"booking,omitempty"`
	Extra          Fields     `json:"-"`
}

func (a Agreement) MarshalJSON() ([]byte, error) {
	type plain Agreement
	return encodeWithExtra(plain(a), a.Extra)
}

func (a *Agreement) UnmarshalJSON(data []byte) error {
	type plain Agreement
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*a = Agreement(p)
	a.Extra = extra
	return nil
}
