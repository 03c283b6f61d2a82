package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pollsite-census/internal/pollsite"
)

// SitePoint pairs a poll site with its point geometry.
type SitePoint struct {
	Index int // position in the input slice
	Site  *pollsite.PollSite
	Point *geom.Point
}

// SRID returns the point's spatial reference id.
func (p SitePoint) SRID() int {
	return p.Point.SRID()
}

// PointsFromSites builds one (lon, lat) point per site in the given SRID.
// Every site must already have coordinates.
func PointsFromSites(sites []pollsite.PollSite, srid int) ([]SitePoint, error) {
	if srid <= 0 {
		return nil, eris.Errorf("spatial: invalid srid %d", srid)
	}
	out := make([]SitePoint, len(sites))
	for i := range sites {
		s := &sites[i]
		if !s.HasCoordinates() {
			return nil, eris.Errorf("spatial: site %s (%s) has no coordinates", s.SiteNumber, s.SiteName)
		}
		lat, lon := *s.Latitude, *s.Longitude
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, eris.Errorf("spatial: site %s has out-of-range coordinates (%f, %f)", s.SiteNumber, lat, lon)
		}
		pt, err := geom.NewPoint(geom.XY).SetCoords(geom.Coord{lon, lat})
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: point for site %s", s.SiteNumber)
		}
		out[i] = SitePoint{Index: i, Site: s, Point: pt.SetSRID(srid)}
	}
	return out, nil
}
