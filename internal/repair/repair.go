// Package repair fills in missing poll-site coordinates by geocoding their
// assembled postal addresses, with one correction-and-retry pass.
package repair

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/address"
	"github.com/sells-group/pollsite-census/internal/pollsite"
	"github.com/sells-group/pollsite-census/pkg/geocode"
)

// Stats summarizes a repair run.
type Stats struct {
	Missing    int // sites without coordinates on input
	FirstPass  int // resolved by the first geocoding pass
	Corrected  int // resolved by the retry pass
	Unresolved int
}

// Unresolved identifies a site that could not be geocoded.
type Unresolved struct {
	SiteNumber string
	SiteName   string
	Address    string // last address submitted
}

// UnresolvedError is returned when sites remain without coordinates after
// the retry pass.
type UnresolvedError struct {
	Sites []Unresolved
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, len(e.Sites))
	for i, s := range e.Sites {
		parts[i] = fmt.Sprintf("%s (%s) at %q", s.SiteNumber, s.SiteName, s.Address)
	}
	return fmt.Sprintf("repair: %d site(s) could not be geocoded: %s", len(e.Sites), strings.Join(parts, "; "))
}

// Repairer geocodes poll sites that are missing coordinates.
type Repairer struct {
	client      geocode.Client
	state       string
	corrections Corrections
	log         *zap.Logger
}

// New creates a Repairer. A nil corrections table is treated as empty.
func New(client geocode.Client, state string, corrections Corrections) *Repairer {
	if corrections == nil {
		corrections = Corrections{}
	}
	return &Repairer{
		client:      client,
		state:       state,
		corrections: corrections,
		log:         zap.L().With(zap.String("component", "repair")),
	}
}

// Repair resolves coordinates for every site lacking them, mutating sites in
// place. Failures from the first pass are swapped for their corrected address
// when the corrections table has one, and every failure is re-submitted
// exactly once. Sites still unresolved afterwards produce an
// *UnresolvedError; sites that were resolved stay resolved.
func (r *Repairer) Repair(ctx context.Context, sites []pollsite.PollSite) (Stats, error) {
	missing := pollsite.Missing(sites)
	stats := Stats{Missing: len(missing)}
	if len(missing) == 0 {
		r.log.Info("no sites missing coordinates")
		return stats, nil
	}

	raw := make([]string, len(missing))
	parts := make(map[int]address.Parts, len(missing))
	for j, i := range missing {
		raw[j] = sites[i].StreetName
		p := address.FromSite(&sites[i], r.state)
		if err := p.Validate(); err != nil {
			return stats, eris.Wrapf(err, "repair: site %s", sites[i].SiteNumber)
		}
		parts[i] = p
		sites[i].Address = p.String()
	}
	if err := address.CheckConsistency(raw); err != nil {
		return stats, err
	}

	structured := func(i int) geocode.AddressInput {
		p := parts[i]
		return geocode.AddressInput{
			Street:  p.Street(),
			City:    p.City,
			State:   p.State,
			ZipCode: p.Postcode,
			Line:    sites[i].Address,
		}
	}

	failed, err := r.pass(ctx, sites, missing, func(i int) (geocode.AddressInput, string) {
		return structured(i), ""
	})
	if err != nil {
		return stats, err
	}
	stats.FirstPass = len(missing) - len(failed)
	r.log.Info("first geocoding pass complete",
		zap.Int("missing", stats.Missing),
		zap.Int("resolved", stats.FirstPass),
		zap.Int("failed", len(failed)),
	)
	if len(failed) == 0 {
		return stats, nil
	}

	tried := make(map[int]string, len(failed))
	stillFailed, err := r.pass(ctx, sites, failed, func(i int) (geocode.AddressInput, string) {
		if fixed, ok := r.corrections.Lookup(sites[i].Address); ok {
			tried[i] = fixed
			return geocode.AddressInput{Line: fixed}, pollsite.SourceCorrected
		}
		tried[i] = sites[i].Address
		return structured(i), ""
	})
	if err != nil {
		return stats, err
	}
	stats.Corrected = len(failed) - len(stillFailed)
	stats.Unresolved = len(stillFailed)
	r.log.Info("retry pass complete",
		zap.Int("retried", len(failed)),
		zap.Int("resolved", stats.Corrected),
		zap.Int("unresolved", stats.Unresolved),
	)

	if len(stillFailed) > 0 {
		ue := &UnresolvedError{Sites: make([]Unresolved, len(stillFailed))}
		for j, i := range stillFailed {
			ue.Sites[j] = Unresolved{
				SiteNumber: sites[i].SiteNumber,
				SiteName:   sites[i].SiteName,
				Address:    tried[i],
			}
		}
		return stats, ue
	}
	return stats, nil
}

// pass geocodes the sites at idx using the address chosen by pick, stores
// matches, and returns the indexes that did not match. A non-empty source
// from pick overrides the geocoder's source on the stored coordinates.
func (r *Repairer) pass(ctx context.Context, sites []pollsite.PollSite, idx []int, pick func(int) (geocode.AddressInput, string)) ([]int, error) {
	inputs := make([]geocode.AddressInput, len(idx))
	sources := make([]string, len(idx))
	for j, i := range idx {
		in, source := pick(i)
		in.ID = strconv.Itoa(j)
		inputs[j] = in
		sources[j] = source
	}

	results, err := r.client.BatchGeocode(ctx, inputs)
	if err != nil {
		return nil, eris.Wrap(err, "repair: geocode")
	}
	if len(results) != len(inputs) {
		return nil, eris.Errorf("repair: geocoder returned %d results for %d addresses", len(results), len(inputs))
	}

	var failed []int
	for j, i := range idx {
		res := results[j]
		if !res.Matched {
			r.log.Debug("address not matched",
				zap.String("site", sites[i].SiteNumber),
				zap.String("address", inputs[j].Line),
			)
			failed = append(failed, i)
			continue
		}
		source := res.Source
		if sources[j] != "" {
			source = sources[j]
		}
		sites[i].SetCoordinates(res.Latitude, res.Longitude, source)
	}
	return failed, nil
}
