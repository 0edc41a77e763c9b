package domain

// Location is the geographic data resolved for an IP address.
type Location struct {
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	RegionName  string  `json:"region_name"`
	CityName    string  `json:"city_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
}

// EmptyLocation is used for addresses that are valid but have no geographic data,
// like private ranges or localhost.
func EmptyLocation() Location {
	return Location{}
}

// IsEmpty reports whether every field is blank.
func (l Location) IsEmpty() bool {
	return l == Location{}
}

// VisitLocation binds a Location to a Visit.
type VisitLocation struct {
	Location
	ID      int64 `json:"-"`
	Unknown bool  `json:"is_unknown,omitempty"`
}

func NewVisitLocation(loc Location) VisitLocation {
	return VisitLocation{Location: loc}
}

// UnknownVisitLocation marks a visit whose location could not be determined
// because the geolocation database was unusable.
func UnknownVisitLocation() VisitLocation {
	return VisitLocation{Unknown: true}
}

func (l VisitLocation) IsUnknown() bool {
	return l.Unknown
}

// IsEmpty reports a location that was resolved but carries no data.
func (l VisitLocation) IsEmpty() bool {
	return !l.Unknown && l.Location.IsEmpty()
}
