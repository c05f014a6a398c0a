package models

// VanityPage is a fleet's public brand page. Branding and business
// details are opaque document fields in Extra. Vehicles is filled in when
// the page is served.
type VanityPage struct {
	ID       string    `json:"id,omitempty"`
	FleetRef string    `json:"fleetRef,omitempty"`
	Vehicles []Vehicle `json:"vehicles"`
	Extra    Fields    `json:"-"`
}

func (p VanityPage) MarshalJSON() ([]byte, error) {
	type plain VanityPage
	return encodeWithExtra(plain(p), p.Extra)
}

func (p *VanityPage) UnmarshalJSON(data []byte) error {
	type plain VanityPage
	var v plain
	extra, err := decodeWithExtra(data, &v)
	if err != nil {
		return err
	}
	*p = VanityPage(v)
	p.Extra = extra
	return nil
}
