package tiger

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// PolygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// with the given SRID. Shapefile outer rings wind clockwise and holes
// counter-clockwise; each hole is attached to the outer ring containing it.
// Returns nil, nil for empty shapes.
func PolygonToMultiPolygon(p *shp.Polygon, srid int) (*geom.MultiPolygon, error) {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, nil
	}

	var outers, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("tiger: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if signedArea(flat) <= 0 {
			outers = append(outers, flat)
		} else {
			holes = append(holes, flat)
		}
	}

	// Files with inverted winding: treat every ring as an outer ring.
	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	rings := make([][][]float64, len(outers))
	for i, o := range outers {
		rings[i] = [][]float64{o}
	}
	for _, h := range holes {
		owner := -1
		pt := geom.Coord{h[0], h[1]}
		for i, o := range outers {
			if xy.IsPointInRing(geom.XY, pt, o) {
				owner = i
				break
			}
		}
		if owner < 0 {
			zap.L().Debug("tiger: hole outside every outer ring, keeping as polygon")
			rings = append(rings, [][]float64{h})
			continue
		}
		rings[owner] = append(rings[owner], h)
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for i, poly := range rings {
		var flat []float64
		ends := make([]int, 0, len(poly))
		for _, r := range poly {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			return nil, eris.Wrapf(err, "tiger: polygon part %d", i)
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}
	return mp, nil
}

// signedArea is the shoelace area of a closed flat XY ring; negative for
// clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := range n {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

// EncodeWKB converts a geometry to little-endian EWKB, carrying its SRID.
// Returns nil, nil for a nil geometry.
func EncodeWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: encode WKB")
	}
	return data, nil
}
