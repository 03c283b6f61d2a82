package quality

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/census"
)

// RecordReport checks that a long-format demographic extract carries at most
// one record per (tract, variable).
type RecordReport struct {
	Records          int
	Tracts           int
	Variables        int
	MissingEstimates int
	Duplicates       []KeyedDuplicate // keys are "GEOID/VARIABLE"
}

// CheckRecords builds a RecordReport.
func CheckRecords(records []census.DemographicRecord) *RecordReport {
	r := &RecordReport{Records: len(records)}
	tracts := make(map[string]struct{})
	vars := make(map[string]struct{})
	keys := make([]string, len(records))
	for i, rec := range records {
		tracts[rec.GEOID] = struct{}{}
		vars[rec.Variable] = struct{}{}
		keys[i] = rec.GEOID + "/" + rec.Variable
		if rec.Estimate == nil {
			r.MissingEstimates++
		}
	}
	r.Tracts = len(tracts)
	r.Variables = len(vars)
	r.Duplicates = DuplicateKeys(keys)
	return r
}

// Unique reports whether every (tract, variable) pair occurs once.
func (r *RecordReport) Unique() bool {
	return len(r.Duplicates) == 0
}

// Log writes the report to the global logger.
func (r *RecordReport) Log() {
	zap.L().Info("demographic record check",
		zap.Int("records", r.Records),
		zap.Int("tracts", r.Tracts),
		zap.Int("variables", r.Variables),
		zap.Int("missing_estimates", r.MissingEstimates),
		zap.Int("duplicate_keys", len(r.Duplicates)),
	)
}

// WriteText renders the report as plain text.
func (r *RecordReport) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "demographics: %d records, %d tracts, %d variables, %d missing estimates, %d duplicate (tract, variable) keys\n",
		r.Records, r.Tracts, r.Variables, r.MissingEstimates, len(r.Duplicates)); err != nil {
		return err
	}
	for _, d := range r.Duplicates {
		if _, err := fmt.Fprintf(w, "  %s x%d\n", d.Key, d.Count); err != nil {
			return err
		}
	}
	return nil
}
