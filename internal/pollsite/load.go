package pollsite

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// record mirrors one CSV row of the poll-site extract.
type record struct {
	SiteNumber   string `csv:"SITE_NUMBER"`
	SiteName     string `csv:"SITE_NAME"`
	Borough      string `csv:"BOROUGH"`
	StreetNumber string `csv:"STREET_NUMBER"`
	StreetName   string `csv:"STREET_NAME"`
	City         string `csv:"CITY"`
	Postcode     string `csv:"POSTCODE"`
	Latitude     string `csv:"Latitude"`
	Longitude    string `csv:"Longitude"`
}

// outputRecord is the repaired extract written after geocoding.
type outputRecord struct {
	SiteNumber    string `csv:"SITE_NUMBER"`
	SiteName      string `csv:"SITE_NAME"`
	Borough       string `csv:"BOROUGH"`
	StreetNumber  string `csv:"STREET_NUMBER"`
	StreetName    string `csv:"STREET_NAME"`
	City          string `csv:"CITY"`
	Postcode      string `csv:"POSTCODE"`
	Latitude      string `csv:"Latitude"`
	Longitude     string `csv:"Longitude"`
	Address       string `csv:"ADDRESS"`
	GeocodeSource string `csv:"GEOCODE_SOURCE"`
}

// Extract holds the raw table alongside the decoded sites. The raw cells feed
// the quality checker; the sites feed every later stage.
type Extract struct {
	Header []string
	Rows   [][]string
	Sites  []PollSite
}

// Load reads a poll-site CSV from disk.
func Load(path string) (*Extract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pollsite: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a poll-site CSV. Every required column must be present;
// empty Latitude/Longitude cells decode to nil coordinates.
func Parse(data []byte) (*Extract, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "pollsite: read csv")
	}
	if len(all) == 0 {
		return nil, eris.New("pollsite: empty file")
	}

	header := all[0]
	trimmed := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		trimmed[i] = strings.TrimSpace(h)
		present[trimmed[i]] = true
	}
	var missing []string
	for _, col := range Columns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("pollsite: missing columns %s", strings.Join(missing, ", "))
	}

	// Decode against the trimmed header so " Latitude" still binds.
	rows := csv.NewReader(bytes.NewReader(data))
	rows.FieldsPerRecord = -1
	if _, err := rows.Read(); err != nil {
		return nil, eris.Wrap(err, "pollsite: read header")
	}
	dec, err := csvutil.NewDecoder(rows, trimmed...)
	if err != nil {
		return nil, eris.Wrap(err, "pollsite: header")
	}

	sites := make([]PollSite, 0, len(all)-1)
	// line is 1-based and counts the header.
	for line := 2; ; line++ {
		var r record
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "pollsite: decode line %d", line)
		}
		site, err := r.toSite()
		if err != nil {
			return nil, eris.Wrapf(err, "pollsite: line %d", line)
		}
		sites = append(sites, site)
	}

	return &Extract{Header: header, Rows: all[1:], Sites: sites}, nil
}

func (r record) toSite() (PollSite, error) {
	borough, err := ParseBorough(r.Borough)
	if err != nil {
		return PollSite{}, err
	}
	lat, err := parseCoord(r.Latitude)
	if err != nil {
		return PollSite{}, eris.Wrap(err, "latitude")
	}
	lon, err := parseCoord(r.Longitude)
	if err != nil {
		return PollSite{}, eris.Wrap(err, "longitude")
	}

	site := PollSite{
		SiteNumber:   strings.TrimSpace(r.SiteNumber),
		SiteName:     strings.TrimSpace(r.SiteName),
		Borough:      borough,
		StreetNumber: strings.TrimSpace(r.StreetNumber),
		StreetName:   strings.TrimSpace(r.StreetName),
		City:         strings.TrimSpace(r.City),
		Postcode:     strings.TrimSpace(r.Postcode),
		Latitude:     lat,
		Longitude:    lon,
	}
	if site.HasCoordinates() {
		site.GeocodeSource = SourceInput
	}
	return site, nil
}

func parseCoord(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", s)
	}
	return &v, nil
}

// Write encodes sites as CSV, including the assembled address and the
// geocode source of each row.
func Write(w io.Writer, sites []PollSite) error {
	out := make([]outputRecord, 0, len(sites))
	for _, s := range sites {
		out = append(out, outputRecord{
			SiteNumber:    s.SiteNumber,
			SiteName:      s.SiteName,
			Borough:       string(s.Borough),
			StreetNumber:  s.StreetNumber,
			StreetName:    s.StreetName,
			City:          s.City,
			Postcode:      s.Postcode,
			Latitude:      formatCoord(s.Latitude),
			Longitude:     formatCoord(s.Longitude),
			Address:       s.Address,
			GeocodeSource: s.GeocodeSource,
		})
	}

	data, err := csvutil.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "pollsite: encode rows")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "pollsite: write rows")
	}
	return nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
