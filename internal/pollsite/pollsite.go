// Package pollsite loads and writes voting poll-site records.
package pollsite

// Column names of the poll-site extract.
const (
	ColSiteNumber   = "SITE_NUMBER"
	ColSiteName     = "SITE_NAME"
	ColBorough      = "BOROUGH"
	ColStreetNumber = "STREET_NUMBER"
	ColStreetName   = "STREET_NAME"
	ColCity         = "CITY"
	ColPostcode     = "POSTCODE"
	ColLatitude     = "Latitude"
	ColLongitude    = "Longitude"
)

// Columns lists the required header of the poll-site extract in file order.
var Columns = []string{
	ColSiteNumber, ColSiteName, ColBorough, ColStreetNumber, ColStreetName,
	ColCity, ColPostcode, ColLatitude, ColLongitude,
}

// Geocode sources recorded on a PollSite.
const (
	SourceInput     = "input"
	SourceCorrected = "corrected"
)

// PollSite is one physical voting location.
type PollSite struct {
	SiteNumber   string
	SiteName     string
	Borough      Borough
	StreetNumber string
	StreetName   string
	City         string
	Postcode     string
	Latitude     *float64
	Longitude    *float64

	// Address is the assembled one-line postal address used for geocoding.
	Address string
	// GeocodeSource records where the coordinates came from.
	GeocodeSource string
}

// HasCoordinates reports whether both latitude and longitude are set.
func (p *PollSite) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// SetCoordinates stores a resolved coordinate pair.
func (p *PollSite) SetCoordinates(lat, lon float64, source string) {
	p.Latitude = &lat
	p.Longitude = &lon
	p.GeocodeSource = source
}

// Missing returns the indexes of sites lacking coordinates, in input order.
func Missing(sites []PollSite) []int {
	var idx []int
	for i := range sites {
		if !sites[i].HasCoordinates() {
			idx = append(idx, i)
		}
	}
	return idx
}
