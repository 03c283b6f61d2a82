package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes an upsert of rows into Table keyed on Keys.
type Merge struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns each row supplies, in order
	Keys    []string // columns of the unique constraint
	// Update lists the columns overwritten on conflict. Nil means every
	// column outside Keys.
	Update []string
}

func (m Merge) validate(rows [][]any) error {
	if len(m.Columns) == 0 {
		return eris.Errorf("db: merge into %s: no columns", m.Table)
	}
	if len(m.Keys) == 0 {
		return eris.Errorf("db: merge into %s: no key columns", m.Table)
	}
	for _, k := range m.Keys {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge into %s: key %q is not a column", m.Table, k)
		}
	}
	for i, r := range rows {
		if len(r) != len(m.Columns) {
			return eris.Errorf("db: merge into %s: row %d has %d values for %d columns", m.Table, i, len(r), len(m.Columns))
		}
	}
	return nil
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	var cols []string
	for _, c := range m.Columns {
		if !slices.Contains(m.Keys, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// stage names the temp table rows are copied into before the merge.
func (m Merge) stage() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

// mergeSQL builds the INSERT ... ON CONFLICT statement reading from the
// stage table. With nothing to update it degrades to DO NOTHING.
func (m Merge) mergeSQL() string {
	cols := quoteAll(m.Columns)
	action := "DO NOTHING"
	if upd := m.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		Identifier(m.Table).Sanitize(), cols, cols,
		pgx.Identifier{m.stage()}.Sanitize(), quoteAll(m.Keys), action)
}

// Upsert stages rows in a temp table shaped like the target and merges them
// in. tx must be a transaction: the stage table is dropped on commit.
// Running it twice with the same rows leaves the target unchanged.
func Upsert(ctx context.Context, tx Conn, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(rows); err != nil {
		return 0, err
	}

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{m.stage()}.Sanitize(), Identifier(m.Table).Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: stage %s", m.Table)
	}
	if _, err := CopyFrom(ctx, tx, m.stage(), m.Columns, rows); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, m.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", m.Table)
	}
	return tag.RowsAffected(), nil
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
