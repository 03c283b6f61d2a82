package address

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pollsite-census/internal/pollsite"
)

// Parts are the components of a one-line postal address.
type Parts struct {
	StreetNumber string
	StreetName   string
	City         string
	State        string
	Postcode     string
}

// FromSite extracts address parts from a poll site, normalizing the street
// name on the way.
func FromSite(s *pollsite.PollSite, state string) Parts {
	return Parts{
		StreetNumber: s.StreetNumber,
		StreetName:   NormalizeStreet(s.StreetName),
		City:         s.City,
		State:        state,
		Postcode:     s.Postcode,
	}
}

// Street joins the street number and name.
func (p Parts) Street() string {
	return strings.Join(strings.Fields(p.StreetNumber+" "+p.StreetName), " ")
}

// Validate rejects parts whose rendering could be mistaken for other parts:
// a comma in any component, or a street number, state or postcode that is
// not a single token. A missing street number or state is also rejected.
func (p Parts) Validate() error {
	for _, c := range []struct{ name, v string }{
		{"street number", p.StreetNumber},
		{"street name", p.StreetName},
		{"city", p.City},
		{"state", p.State},
		{"postcode", p.Postcode},
	} {
		if strings.Contains(c.v, ",") {
			return eris.Errorf("address: %s %q contains a comma", c.name, c.v)
		}
	}
	if len(strings.Fields(p.StreetNumber)) != 1 {
		return eris.Errorf("address: street number %q is not a single token", p.StreetNumber)
	}
	if len(strings.Fields(p.State)) != 1 {
		return eris.Errorf("address: state %q is not a single token", p.State)
	}
	if len(strings.Fields(p.Postcode)) > 1 {
		return eris.Errorf("address: postcode %q is not a single token", p.Postcode)
	}
	return nil
}

// String renders "<number> <street>, <city>, <state> <postcode>". Runs of
// whitespace inside a component collapse to one space. Parts that pass
// Validate and still differ after that collapsing render differently.
func (p Parts) String() string {
	city := strings.Join(strings.Fields(p.City), " ")
	tail := strings.Join(strings.Fields(p.State+" "+p.Postcode), " ")
	return p.Street() + ", " + city + ", " + tail
}

// Assemble normalizes the street name of s and returns its one-line address.
func Assemble(s *pollsite.PollSite, state string) string {
	return FromSite(s, state).String()
}
