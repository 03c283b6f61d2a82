package report

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/pollsite"
)

var siteColor = color.RGBA{R: 0x08, G: 0x30, B: 0x6b, A: 0xff}

// BoroughMap draws the tracts of one borough shaded by population class, with
// the borough's poll sites overlaid.
func BoroughMap(b pollsite.Borough, tracts []aggregate.TractSummary, sites []pollsite.PollSite) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Poll sites and tract population: " + string(b)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Legend.Top = true
	p.Legend.Left = true

	used := make(map[int]bool)
	drawn := 0
	for _, t := range tracts {
		if t.Geometry == nil || t.CountyFIPS != b.CountyFIPS() {
			continue
		}
		class := PopulationClass(t.Population)
		used[class] = true
		for i := 0; i < t.Geometry.NumPolygons(); i++ {
			poly := t.Geometry.Polygon(i)
			rings := make([]plotter.XYer, 0, poly.NumLinearRings())
			for j := 0; j < poly.NumLinearRings(); j++ {
				flat := poly.LinearRing(j).FlatCoords()
				xys := make(plotter.XYs, len(flat)/2)
				for k := range xys {
					xys[k].X, xys[k].Y = flat[2*k], flat[2*k+1]
				}
				rings = append(rings, xys)
			}
			pg, err := plotter.NewPolygon(rings...)
			if err != nil {
				return nil, eris.Wrapf(err, "report: polygon for tract %s", t.GEOID)
			}
			pg.Color = ClassColor(class)
			pg.LineStyle.Width = vg.Points(0.2)
			pg.LineStyle.Color = color.White
			p.Add(pg)
		}
		drawn++
	}
	if drawn == 0 {
		return nil, eris.Errorf("report: no tracts with geometry in %s", b)
	}

	for class := -1; class < len(PopulationBreaks); class++ {
		if !used[class] {
			continue
		}
		swatch := &plotter.Polygon{Color: ClassColor(class), LineStyle: plotter.DefaultLineStyle}
		p.Legend.Add(ClassLabel(class), swatch)
	}

	var pts plotter.XYs
	for _, s := range sites {
		if s.Borough != b || !s.HasCoordinates() {
			continue
		}
		pts = append(pts, plotter.XY{X: *s.Longitude, Y: *s.Latitude})
	}
	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, eris.Wrapf(err, "report: poll sites for %s", b)
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: siteColor, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
		p.Add(sc)
		p.Legend.Add("poll site", sc)
	}
	return p, nil
}

// SaveBoroughMaps writes one map per borough that has tracts into dir, as
// <slug>_map.<format>. It returns the written paths.
func SaveBoroughMaps(dir string, widthIn float64, format string, tracts []aggregate.TractSummary, sites []pollsite.PollSite) ([]string, error) {
	if widthIn <= 0 {
		widthIn = 8
	}
	if format == "" {
		format = "png"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	var paths []string
	for _, b := range pollsite.Boroughs {
		if !hasBorough(tracts, b) {
			continue
		}
		p, err := BoroughMap(b, tracts, sites)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, b.Slug()+"_map."+format)
		w := vg.Length(widthIn) * vg.Inch
		if err := p.Save(w, w, path); err != nil {
			return nil, eris.Wrapf(err, "report: save %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func hasBorough(tracts []aggregate.TractSummary, b pollsite.Borough) bool {
	for _, t := range tracts {
		if t.Geometry != nil && t.CountyFIPS == b.CountyFIPS() {
			return true
		}
	}
	return false
}
