package census

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pollsite-census/internal/fetcher"
)

// readHeaderTable reads a CSV/XLSX extract and resolves the wanted columns
// by alias. A data.census.gov style label row directly under the header is
// skipped.
func readHeaderTable(path string, want map[string][]string, optional ...string) (map[string]int, [][]string, error) {
	tbl, err := fetcher.ReadTable(path, fetcher.TableOptions{TrimSpace: true})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "census: read %s", path)
	}
	cols, err := tbl.Resolve(want, optional...)
	if err != nil {
		return nil, nil, eris.Wrap(err, "census")
	}

	data := tbl.Rows
	if len(data) > 0 {
		if label := fetcher.Cell(data[0], cols["geoid"]); strings.EqualFold(label, "Geography") || strings.EqualFold(label, "id") {
			data = data[1:]
		}
	}
	return cols, data, nil
}

func isGEOID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LoadPopulationFile reads a population extract with a GEOID column and a
// B01003_001E (or POPULATION) column.
func LoadPopulationFile(path string) ([]PopulationRow, error) {
	cols, data, err := readHeaderTable(path, map[string][]string{
		"geoid":      {"GEOID", "GEO_ID"},
		"name":       {"NAME"},
		"population": {PopulationVariable + "E", "POPULATION", "ESTIMATE"},
	}, "name")
	if err != nil {
		return nil, err
	}

	out := make([]PopulationRow, 0, len(data))
	for i, row := range data {
		id := NormalizeGEOID(fetcher.Cell(row, cols["geoid"]))
		if !isGEOID(id) {
			return nil, eris.Errorf("census: %s row %d: invalid GEOID %q", path, i+2, id)
		}
		raw := fetcher.Cell(row, cols["population"])
		pop, err := parseEstimate(&raw)
		if err != nil {
			return nil, eris.Wrapf(err, "census: %s row %d population", path, i+2)
		}
		r := PopulationRow{GEOID: id, Population: pop}
		if c, ok := cols["name"]; ok {
			r.Name = fetcher.Cell(row, c)
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadDemographicsFile reads a long-format demographic extract with GEOID,
// VARIABLE, ESTIMATE, and MOE columns.
func LoadDemographicsFile(path string) ([]DemographicRecord, error) {
	cols, data, err := readHeaderTable(path, map[string][]string{
		"geoid":    {"GEOID", "GEO_ID"},
		"variable": {"VARIABLE"},
		"estimate": {"ESTIMATE", "VALUE"},
		"moe":      {"MOE", "MARGIN_OF_ERROR"},
	}, "moe")
	if err != nil {
		return nil, err
	}

	out := make([]DemographicRecord, 0, len(data))
	for i, row := range data {
		id := NormalizeGEOID(fetcher.Cell(row, cols["geoid"]))
		if !isGEOID(id) {
			return nil, eris.Errorf("census: %s row %d: invalid GEOID %q", path, i+2, id)
		}
		variable := normalizeVariable(fetcher.Cell(row, cols["variable"]))
		if variable == "" {
			return nil, eris.Errorf("census: %s row %d: empty variable", path, i+2)
		}
		raw := fetcher.Cell(row, cols["estimate"])
		est, err := parseEstimate(&raw)
		if err != nil {
			return nil, eris.Wrapf(err, "census: %s row %d estimate", path, i+2)
		}
		rec := DemographicRecord{GEOID: id, Variable: variable, Estimate: est}
		if c, ok := cols["moe"]; ok {
			raw := fetcher.Cell(row, c)
			if rec.MarginOfError, err = parseEstimate(&raw); err != nil {
				return nil, eris.Wrapf(err, "census: %s row %d margin of error", path, i+2)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// normalizeVariable drops the E suffix of an estimate code: B02001_002E → B02001_002.
func normalizeVariable(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if i := strings.IndexByte(v, '_'); i > 0 && len(v) == i+5 && strings.HasSuffix(v, "E") {
		return v[:len(v)-1]
	}
	return v
}
