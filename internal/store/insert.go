package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// PostgreSQL caps prepared statements at 65535 parameters; stay under
// it with headroom so adding a column never tips a batch over.
const maxParamsPerStatement = 65000

// InsertChunk writes records into table with insert-or-ignore
// semantics: rows whose id already exists are skipped, never updated.
// History rows are immutable, so a conflict always means the row was
// already migrated. Returns the number of rows actually inserted;
// len(records) minus that count is the conflict count.
//
// When a chunk carries more parameters than a single statement allows
// it is split into multiple statements inside the caller's
// transaction, so the chunk still commits or rolls back as a unit.
func InsertChunk(ctx context.Context, tx pgx.Tx, table string, columns []string, records [][]any) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	maxRowsPerStatement := maxParamsPerStatement / len(columns)
	if maxRowsPerStatement < 1 {
		return 0, fmt.Errorf("table %s has too many columns (%d) for a single row insert", table, len(columns))
	}

	var inserted int64
	for start := 0; start < len(records); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		sql, args := buildInsertIgnoreSQL(table, columns, batch)
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return inserted, fmt.Errorf("inserting into %s: %w", table, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// buildInsertIgnoreSQL renders a multi-row INSERT with ON CONFLICT DO
// NOTHING on the id column.
func buildInsertIgnoreSQL(table string, columns []string, records [][]any) (string, []any) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pq.QuoteIdentifier(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(columns))
	param := 1
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", param)
			param++
			args = append(args, rec[j])
		}
		sb.WriteByte(')')
	}

	sb.WriteString(" ON CONFLICT (id) DO NOTHING")
	return sb.String(), args
}
