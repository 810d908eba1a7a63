// Package dataset defines the per-dataset contract for the warehouse
// pipeline. Each dataset is one small type that knows its source query,
// the columns of its destination table, the fields its surrogate id is
// derived from, and how to clean and shape one source row.
package dataset

// Row is an ordered projection of one source row: column name to raw
// scalar (string, number, or nil). Rows are ephemeral; they exist only
// during one pipeline run.
type Row map[string]any

// Dataset describes one migratable table.
type Dataset interface {
	// Name is the destination table name and the progress key.
	Name() string

	// MigrationQuery is the SELECT issued against the source store.
	MigrationQuery() string

	// Columns lists destination columns in insert order. The first
	// column is always the deterministic surrogate id.
	Columns() []string

	// HashColumns names the fields the surrogate id is derived from.
	HashColumns() []string

	// Clean normalizes one raw source row in place and returns it.
	Clean(row Row) Row

	// BuildRecord shapes a cleaned row into destination values aligned
	// with Columns. It returns an error for rows that cannot be mapped,
	// which aborts the current run at the failing chunk.
	BuildRecord(row Row) ([]any, error)
}
