package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// TractShape is one record of a TIGER/Line tract shapefile.
type TractShape struct {
	GEOID    string
	StateFP  string
	CountyFP string
	TractCE  string
	Name     string
	NameLSAD string
	ALand    int64
	AWater   int64
	Geometry *geom.MultiPolygon
}

// ReadTracts reads every tract of a TIGER/Line shapefile whose county is in
// counties (all tracts when counties is empty). Polygons carry srid.
func ReadTracts(shpPath string, srid int, counties []string) ([]TractShape, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	for _, required := range []string{"geoid", "countyfp"} {
		if _, ok := fieldIdx[required]; !ok {
			return nil, eris.Errorf("tiger: shapefile %s has no %s field", shpPath, strings.ToUpper(required))
		}
	}

	keep := make(map[string]bool, len(counties))
	for _, c := range counties {
		keep[c] = true
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var tracts []TractShape
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		county := attr("countyfp")
		if len(keep) > 0 && !keep[county] {
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp, err := PolygonToMultiPolygon(poly, srid)
		if err != nil {
			return nil, eris.Wrapf(err, "tiger: %s tract %s", shpPath, attr("geoid"))
		}
		if mp == nil {
			skipped++
			continue
		}

		tracts = append(tracts, TractShape{
			GEOID:    attr("geoid"),
			StateFP:  attr("statefp"),
			CountyFP: county,
			TractCE:  attr("tractce"),
			Name:     attr("name"),
			NameLSAD: attr("namelsad"),
			ALand:    parseInt(attr("aland")),
			AWater:   parseInt(attr("awater")),
			Geometry: mp,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Warn("tiger: skipped shapefile records without polygon geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return tracts, nil
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
