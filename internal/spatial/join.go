package spatial

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/census"
)

// JoinedRow is one row of the tract-left join. Site is nil for a tract that
// contains no poll site.
type JoinedRow struct {
	Tract *census.Tract
	Site  *SitePoint
}

// SiteRef identifies a poll site in a JoinReport.
type SiteRef struct {
	SiteNumber string
	SiteName   string
	Lat, Lon   float64
}

// Placement records a site that did not land in the interior of exactly one
// tract, and the tract it was assigned to (empty when dropped).
type Placement struct {
	Site       SiteRef
	Candidates []string
	Assigned   string
}

// JoinReport summarizes how sites were placed.
type JoinReport struct {
	Tracts      int
	Sites       int
	Rows        int
	EmptyTracts int
	Unassigned  []SiteRef   // outside every tract
	Ambiguous   []Placement // interior to several tracts
	OnBoundary  []Placement // on a shared edge, interior to none
}

// Assigned returns the number of sites placed in a tract.
func (r *JoinReport) Assigned() int {
	return r.Sites - len(r.Unassigned)
}

// JoinTracts attaches every point to the tract whose polygon contains it.
// Tracts stay on the left: a tract with n sites yields n rows and a tract
// with none yields one row with a nil Site. Output follows tract order, then
// site order.
//
// A point on a shared boundary goes to the lowest GEOID touching it. In
// strict mode a site outside every tract, or interior to more than one, is
// an error; otherwise such sites are logged, recorded in the report and
// dropped (or assigned to the lowest GEOID when ambiguous).
func JoinTracts(tracts []census.Tract, points []SitePoint, strict bool) ([]JoinedRow, *JoinReport, error) {
	if err := checkSRIDs(tracts, points); err != nil {
		return nil, nil, err
	}

	log := zap.L().With(zap.String("component", "spatial"))
	report := &JoinReport{Tracts: len(tracts), Sites: len(points)}

	bounds := make([]*geom.Bounds, len(tracts))
	for i := range tracts {
		if tracts[i].Geometry != nil {
			bounds[i] = tracts[i].Geometry.Bounds()
		}
	}

	assigned := make([][]int, len(tracts))
	placed := make([]int, len(points)) // tract index per point, -1 when dropped
	for pi := range points {
		p := &points[pi]
		c := p.Point.Coords()

		var interior, boundary []int
		for ti := range tracts {
			if bounds[ti] == nil || !bounds[ti].OverlapsPoint(geom.XY, c) {
				continue
			}
			switch locate(tracts[ti].Geometry, c) {
			case location.Interior:
				interior = append(interior, ti)
			case location.Boundary:
				boundary = append(boundary, ti)
			}
		}

		ref := siteRef(p)
		switch {
		case len(interior) == 1:
			placed[pi] = interior[0]
			assigned[interior[0]] = append(assigned[interior[0]], pi)
		case len(interior) > 1:
			pick := lowestGEOID(tracts, interior)
			report.Ambiguous = append(report.Ambiguous, Placement{Site: ref, Candidates: geoids(tracts, interior), Assigned: tracts[pick].GEOID})
			if strict {
				return nil, report, eris.Wrapf(&InvariantError{Check: "one tract per site", Want: 1, Got: len(interior)},
					"spatial: site %s lies inside tracts %v", ref.SiteNumber, geoids(tracts, interior))
			}
			log.Warn("site inside several tracts, using lowest GEOID",
				zap.String("site", ref.SiteNumber), zap.Strings("tracts", geoids(tracts, interior)))
			placed[pi] = pick
			assigned[pick] = append(assigned[pick], pi)
		case len(boundary) > 0:
			pick := lowestGEOID(tracts, boundary)
			report.OnBoundary = append(report.OnBoundary, Placement{Site: ref, Candidates: geoids(tracts, boundary), Assigned: tracts[pick].GEOID})
			log.Debug("site on tract boundary", zap.String("site", ref.SiteNumber), zap.String("tract", tracts[pick].GEOID))
			placed[pi] = pick
			assigned[pick] = append(assigned[pick], pi)
		default:
			placed[pi] = -1
			report.Unassigned = append(report.Unassigned, ref)
			if strict {
				return nil, report, eris.Wrapf(&InvariantError{Check: "one tract per site", Want: 1, Got: 0},
					"spatial: site %s at (%f, %f) is outside every tract", ref.SiteNumber, ref.Lat, ref.Lon)
			}
			log.Warn("site outside every tract, dropped",
				zap.String("site", ref.SiteNumber), zap.Float64("lat", ref.Lat), zap.Float64("lon", ref.Lon))
		}
	}

	var rows []JoinedRow
	for ti := range tracts {
		t := &tracts[ti]
		if len(assigned[ti]) == 0 {
			rows = append(rows, JoinedRow{Tract: t})
			report.EmptyTracts++
			continue
		}
		for _, pi := range assigned[ti] {
			rows = append(rows, JoinedRow{Tract: t, Site: &points[pi]})
		}
	}
	report.Rows = len(rows)

	if err := verifyJoin(tracts, points, placed, rows, report); err != nil {
		return nil, report, err
	}

	log.Info("joined sites to tracts",
		zap.Int("tracts", report.Tracts),
		zap.Int("sites", report.Sites),
		zap.Int("rows", report.Rows),
		zap.Int("empty_tracts", report.EmptyTracts),
		zap.Int("on_boundary", len(report.OnBoundary)),
		zap.Int("unassigned", len(report.Unassigned)),
	)
	return rows, report, nil
}

func checkSRIDs(tracts []census.Tract, points []SitePoint) error {
	srid := 0
	for i := range tracts {
		g := tracts[i].Geometry
		if g == nil {
			continue
		}
		if srid == 0 {
			srid = g.SRID()
		} else if g.SRID() != srid {
			return eris.Wrapf(ErrCRSMismatch, "spatial: tract %s has SRID %d, expected %d", tracts[i].GEOID, g.SRID(), srid)
		}
	}
	for i := range points {
		if srid != 0 && points[i].SRID() != srid {
			return eris.Wrapf(ErrCRSMismatch, "spatial: site %s has SRID %d, tracts have %d",
				points[i].Site.SiteNumber, points[i].SRID(), srid)
		}
	}
	return nil
}

// locate classifies c against a multipolygon, honoring holes.
func locate(mp *geom.MultiPolygon, c geom.Coord) location.Type {
	onEdge := false
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		switch xy.LocatePointInRing(geom.XY, c, poly.LinearRing(0).FlatCoords()) {
		case location.Exterior:
			continue
		case location.Boundary:
			onEdge = true
			continue
		}

		inside := true
		for j := 1; j < poly.NumLinearRings(); j++ {
			switch xy.LocatePointInRing(geom.XY, c, poly.LinearRing(j).FlatCoords()) {
			case location.Interior:
				inside = false
			case location.Boundary:
				inside = false
				onEdge = true
			}
			if !inside {
				break
			}
		}
		if inside {
			return location.Interior
		}
	}
	if onEdge {
		return location.Boundary
	}
	return location.Exterior
}

func siteRef(p *SitePoint) SiteRef {
	c := p.Point.Coords()
	return SiteRef{SiteNumber: p.Site.SiteNumber, SiteName: p.Site.SiteName, Lat: c.Y(), Lon: c.X()}
}

func geoids(tracts []census.Tract, idx []int) []string {
	out := make([]string, len(idx))
	for i, ti := range idx {
		out[i] = tracts[ti].GEOID
	}
	sort.Strings(out)
	return out
}

func lowestGEOID(tracts []census.Tract, idx []int) int {
	best := idx[0]
	for _, ti := range idx[1:] {
		if tracts[ti].GEOID < tracts[best].GEOID {
			best = ti
		}
	}
	return best
}

// verifyJoin checks rows against the per-point placements: every placed
// site appears once under its own tract, every tract appears, and the row
// count is the sum over tracts of max(1, sites placed there).
func verifyJoin(tracts []census.Tract, points []SitePoint, placed []int, rows []JoinedRow, report *JoinReport) error {
	perTract := make([]int, len(tracts))
	kept := 0
	for _, ti := range placed {
		if ti < 0 {
			continue
		}
		perTract[ti]++
		kept++
	}
	if kept+len(report.Unassigned) != len(points) {
		return &InvariantError{Check: "assigned + unassigned == sites", Want: len(points), Got: kept + len(report.Unassigned)}
	}
	want := 0
	for _, n := range perTract {
		want += max(1, n)
	}
	if len(rows) != want {
		return &InvariantError{Check: "rows == sum(max(1, sites per tract))", Want: want, Got: len(rows)}
	}

	tractIdx := make(map[*census.Tract]int, len(tracts))
	for ti := range tracts {
		tractIdx[&tracts[ti]] = ti
	}
	pointIdx := make(map[*SitePoint]int, len(points))
	for pi := range points {
		pointIdx[&points[pi]] = pi
	}
	seenTract := make([]bool, len(tracts))
	seenPoint := make([]bool, len(points))
	for _, r := range rows {
		ti, ok := tractIdx[r.Tract]
		if !ok {
			return &InvariantError{Check: "row tract is an input tract", Want: 1, Got: 0}
		}
		seenTract[ti] = true
		if r.Site == nil {
			if perTract[ti] != 0 {
				return &InvariantError{Check: "empty row only for tracts without sites", Want: 0, Got: perTract[ti], Detail: tracts[ti].GEOID}
			}
			continue
		}
		pi, ok := pointIdx[r.Site]
		if !ok || seenPoint[pi] || placed[pi] != ti {
			return &InvariantError{Check: "each placed site once, under its tract", Want: 1, Got: 0, Detail: r.Site.Site.SiteNumber}
		}
		seenPoint[pi] = true
	}
	for ti, ok := range seenTract {
		if !ok {
			return &InvariantError{Check: "every tract kept", Want: len(tracts), Got: 0, Detail: tracts[ti].GEOID}
		}
	}
	return nil
}
