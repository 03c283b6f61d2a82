package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows with the COPY protocol and fails unless every
// row lands. table may be schema-qualified ("census.tract_summary").
func CopyFrom(ctx context.Context, c Conn, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := c.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

// ReplaceScoped deletes the rows of table whose scopeCol equals scope, then
// copies rows in. Run it inside InTx so readers never see the gap.
func ReplaceScoped(ctx context.Context, c Conn, table, scopeCol string, scope any, columns []string, rows [][]any) (int64, error) {
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", Identifier(table).Sanitize(), pgx.Identifier{scopeCol}.Sanitize())
	if _, err := c.Exec(ctx, del, scope); err != nil {
		return 0, eris.Wrapf(err, "db: clear %s", table)
	}
	return CopyFrom(ctx, c, table, columns, rows)
}

// Identifier splits an optionally schema-qualified table name.
func Identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
