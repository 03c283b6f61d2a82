package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// JSONTable is a table delivered as a JSON array of arrays, the first of
// which names the columns. The Census Data API answers in this shape. Null
// cells decode to nil.
type JSONTable struct {
	Header []string
	Rows   [][]*string
	index  map[string]int
}

// ReadJSONTable decodes a JSON table row by row. Every row must have as many
// cells as the header, and header cells must be non-null and distinct.
func ReadJSONTable(ctx context.Context, r io.Reader) (*JSONTable, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, eris.New("json: empty table")
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read opening token")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("json: expected '[', got %v", tok)
	}
	if !dec.More() {
		return nil, eris.New("json: table has no header row")
	}

	var header []*string
	if err := dec.Decode(&header); err != nil {
		return nil, eris.Wrap(err, "json: decode header")
	}
	t := &JSONTable{Header: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		if h == nil {
			return nil, eris.Errorf("json: header cell %d is null", i)
		}
		if _, dup := t.index[*h]; dup {
			return nil, eris.Errorf("json: header repeats column %q", *h)
		}
		t.Header[i] = *h
		t.index[*h] = i
	}

	for n := 1; dec.More(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "json: context cancelled")
		}
		var row []*string
		if err := dec.Decode(&row); err != nil {
			return nil, eris.Wrapf(err, "json: decode row %d", n)
		}
		if len(row) != len(t.Header) {
			return nil, eris.Errorf("json: row %d has %d cells, header has %d", n, len(row), len(t.Header))
		}
		t.Rows = append(t.Rows, row)
	}

	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "json: read closing token")
	}
	return t, nil
}

// Require returns an error naming the first of cols missing from the header.
func (t *JSONTable) Require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.index[c]; !ok {
			return eris.Errorf("json: table has no column %q", c)
		}
	}
	return nil
}

// Cell returns the cell of row in column col, or nil when the column is
// absent or the cell is null.
func (t *JSONTable) Cell(row []*string, col string) *string {
	i, ok := t.index[col]
	if !ok {
		return nil
	}
	return row[i]
}
