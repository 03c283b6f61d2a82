package report

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/census"
)

// summaryRecord is one row of tract_summary.csv.
type summaryRecord struct {
	GEOID           string   `csv:"geoid"`
	County          string   `csv:"county_fips"`
	Name            string   `csv:"name"`
	Population      *float64 `csv:"population"`
	PollSiteCount   int      `csv:"poll_site_count"`
	IncomeToPoverty *float64 `csv:"income_to_poverty"`
	RaceTotal       *float64 `csv:"race_total"`
	PctWhite        *float64 `csv:"pct_white"`
	PctBlack        *float64 `csv:"pct_black"`
	PctAmInd        *float64 `csv:"pct_american_indian"`
	PctAsian        *float64 `csv:"pct_asian"`
	PctPacific      *float64 `csv:"pct_pacific_islander"`
	PctOther        *float64 `csv:"pct_other_race"`
	PctTwoInclOther *float64 `csv:"pct_two_or_more_incl_other"`
	PctTwoExclOther *float64 `csv:"pct_two_or_more_excl_other"`
	Sources         string   `csv:"sources"`
}

func toRecord(s aggregate.TractSummary) summaryRecord {
	return summaryRecord{
		GEOID:           s.GEOID,
		County:          s.CountyFIPS,
		Name:            s.Name,
		Population:      s.Population,
		PollSiteCount:   s.PollSiteCount,
		IncomeToPoverty: s.IncomeToPoverty,
		RaceTotal:       s.RaceTotal,
		PctWhite:        s.RacePercent[census.White],
		PctBlack:        s.RacePercent[census.Black],
		PctAmInd:        s.RacePercent[census.AmericanIndian],
		PctAsian:        s.RacePercent[census.Asian],
		PctPacific:      s.RacePercent[census.PacificIslander],
		PctOther:        s.RacePercent[census.OtherRace],
		PctTwoInclOther: s.RacePercent[census.TwoOrMoreInclOther],
		PctTwoExclOther: s.RacePercent[census.TwoOrMoreExclOther],
		Sources:         s.Sources.String(),
	}
}

// WriteSummaryCSV writes the tract summary table. Missing values are empty.
func WriteSummaryCSV(w io.Writer, rows []aggregate.TractSummary) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(summaryRecord{}); err != nil {
		return eris.Wrap(err, "report: summary header")
	}
	for _, r := range rows {
		if err := enc.Encode(toRecord(r)); err != nil {
			return eris.Wrapf(err, "report: encode tract %s", r.GEOID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: write summary")
}

// SaveSummaryXLSX writes the tract summary table to a one-sheet workbook.
func SaveSummaryXLSX(path string, rows []aggregate.TractSummary) error {
	header, err := csvutil.Header(summaryRecord{}, "csv")
	if err != nil {
		return eris.Wrap(err, "report: summary header")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("tract_summary")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}

	for _, s := range rows {
		rec := toRecord(s)
		row := sheet.AddRow()
		row.AddCell().SetString(rec.GEOID)
		row.AddCell().SetString(rec.County)
		row.AddCell().SetString(rec.Name)
		addFloat(row, rec.Population)
		row.AddCell().SetInt(rec.PollSiteCount)
		addFloat(row, rec.IncomeToPoverty)
		addFloat(row, rec.RaceTotal)
		for _, c := range census.RaceCategories {
			addFloat(row, s.RacePercent[c])
		}
		row.AddCell().SetString(rec.Sources)
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
