// Package quality computes diagnostic data-quality reports. Nothing here
// mutates its input.
package quality

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Report summarizes duplicates and missing values of a raw table.
type Report struct {
	Name          string
	Rows          int
	DuplicateRows int
	// Duplicates holds the 0-based index of every row that repeats an
	// earlier row exactly.
	Duplicates []int
	Columns    []string
	Missing    map[string]int
}

// Check counts exact duplicate rows and empty cells per column. Rows shorter
// than the header count their absent cells as missing.
func Check(name string, header []string, rows [][]string) *Report {
	r := &Report{
		Name:    name,
		Rows:    len(rows),
		Columns: append([]string(nil), header...),
		Missing: make(map[string]int, len(header)),
	}
	for _, h := range header {
		r.Missing[h] = 0
	}

	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			r.DuplicateRows++
			r.Duplicates = append(r.Duplicates, i)
		} else {
			seen[key] = struct{}{}
		}

		for c, h := range header {
			if c >= len(row) || strings.TrimSpace(row[c]) == "" {
				r.Missing[h]++
			}
		}
	}
	return r
}

// Clean reports whether the table has no duplicates and no missing values.
func (r *Report) Clean() bool {
	if r.DuplicateRows > 0 {
		return false
	}
	for _, n := range r.Missing {
		if n > 0 {
			return false
		}
	}
	return true
}

// Log writes the report to the global logger.
func (r *Report) Log() {
	fields := []zap.Field{
		zap.String("table", r.Name),
		zap.Int("rows", r.Rows),
		zap.Int("duplicate_rows", r.DuplicateRows),
	}
	for _, c := range r.Columns {
		if n := r.Missing[c]; n > 0 {
			fields = append(fields, zap.Int("missing_"+c, n))
		}
	}
	zap.L().Info("quality report", fields...)
}

// WriteText renders the report as an aligned plain-text block.
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s: %d rows, %d duplicate rows\n", r.Name, r.Rows, r.DuplicateRows); err != nil {
		return err
	}
	width := 0
	for _, c := range r.Columns {
		if len(c) > width {
			width = len(c)
		}
	}
	for _, c := range r.Columns {
		if _, err := fmt.Fprintf(w, "  %-*s  %d missing\n", width, c, r.Missing[c]); err != nil {
			return err
		}
	}
	return nil
}

// KeyedDuplicate is a key that occurs more than once where it must be unique.
type KeyedDuplicate struct {
	Key   string
	Count int
}

// DuplicateKeys returns every key appearing more than once, sorted by key.
func DuplicateKeys(keys []string) []KeyedDuplicate {
	counts := make(map[string]int, len(keys))
	for _, k := range keys {
		counts[k]++
	}
	var dups []KeyedDuplicate
	for k, n := range counts {
		if n > 1 {
			dups = append(dups, KeyedDuplicate{Key: k, Count: n})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Key < dups[j].Key })
	return dups
}
