package models

// VehiclePrivateFields are operator-only vehicle keys.
var VehiclePrivateFields = []string{
	"maintenance",
	"creator",
	"expenseGroupId",
	"location",
	"fleetRef",
}

// Vehicle is a rentable car. Details, photos and pricing are kept as
// opaque document fields in Extra.
type Vehicle struct {
	ID       string `json:"id,omitempty"`
	FleetRef string `json:"fleetRef,omitempty"`
	Extra    Fields `json:"-"`
}

func (v Vehicle) MarshalJSON() ([]byte, error) {
	type plain Vehicle
	return encodeWithExtra(plain(v), v.Extra)
}

func (v *Vehicle) UnmarshalJSON(data []byte) error {
	type plain Vehicle
	var p plain
	extra, err := decodeWithExtra(data, &p)
	if err != nil {
		return err
	}
	*v = Vehicle(p)
	v.Extra = extra
	return nil
}
