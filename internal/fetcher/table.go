package fetcher

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// TableOptions configures ReadTable.
type TableOptions struct {
	SheetName string // XLSX only; default is the first sheet
	SkipRows  int    // leading rows to drop before the header
	TrimSpace bool
}

// Table is a CSV or XLSX extract split into its header row and the data
// rows beneath it. Data rows may be ragged; use Cell to read them.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTable reads a CSV or XLSX file, chosen by extension. The first row
// left after SkipRows is the header; a UTF-8 byte-order mark on it is
// dropped. Trailing blank rows, common in spreadsheets, are discarded.
func ReadTable(path string, opts TableOptions) (*Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path, opts.SheetName)
	default:
		return nil, eris.Errorf("table: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	rows = rows[min(opts.SkipRows, len(rows)):]
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("table: %s has no header row", path)
	}
	if opts.TrimSpace {
		for _, row := range rows {
			for i := range row {
				row[i] = strings.TrimSpace(row[i])
			}
		}
	}

	t := &Table{Path: path, Header: rows[0], Rows: rows[1:], index: make(map[string]int, len(rows[0]))}
	if len(t.Header) > 0 {
		t.Header[0] = strings.TrimPrefix(t.Header[0], "\ufeff")
	}
	for i, h := range t.Header {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	return t, nil
}

// Resolve maps each key of want to the index of the first of its aliases
// present in the header, compared case-insensitively. Keys listed in
// optional may go unresolved; any other miss is an error.
func (t *Table) Resolve(want map[string][]string, optional ...string) (map[string]int, error) {
	cols := make(map[string]int, len(want))
	for key, aliases := range want {
		i := slices.IndexFunc(aliases, func(a string) bool {
			_, ok := t.index[strings.ToUpper(a)]
			return ok
		})
		switch {
		case i >= 0:
			cols[key] = t.index[strings.ToUpper(aliases[i])]
		case !slices.Contains(optional, key):
			return nil, eris.Errorf("table: %s has no %s column (tried %s)", t.Path, key, strings.Join(aliases, ", "))
		}
	}
	return cols, nil
}

// Cell returns row[i], or "" when the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	return !slices.ContainsFunc(row, func(c string) bool { return strings.TrimSpace(c) != "" })
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read rows")
	}
	return rows, nil
}

func readXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(sheet.Rows))
	for i, row := range sheet.Rows {
		rows[i] = make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			rows[i][j] = cell.String()
		}
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	s, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	return s, nil
}
