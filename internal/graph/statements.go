package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/store"
)

// Statement is one graph mutation or query, already rendered to SQL.
type Statement struct {
	SQL string
}

// VerifyCheck is a read-only count query with an optional floor.
type VerifyCheck struct {
	Name      string
	Statement Statement
	Min       int64
}

// Relation describes one relationship migration: where its rows come
// from and how a page of them becomes cypher statements.
type Relation interface {
	Name() string  // relationship label, e.g. PRODUCES
	Table() string // warehouse table the rows come from
	CountQuery() string
	PageQuery() string // must carry a stable ORDER BY
	BuildStatements(rows []dataset.Row, mode Mode) ([]Statement, error)
	VerifyChecks() []VerifyCheck
}

// NodeSet describes one node-label migration, executed as a single
// bulk statement.
type NodeSet interface {
	Name() string
	Query() string
	BuildStatements(rows []dataset.Row) ([]Statement, error)
	VerifyChecks() []VerifyCheck
}

// cypher wraps a cypher query in AGE's SQL calling convention.
func cypher(graphName, query string) Statement {
	return Statement{SQL: fmt.Sprintf("SELECT * FROM cypher('%s', $$ %s $$) AS (result agtype)", graphName, query)}
}

// cypherCount wraps a cypher count query; the single agtype column
// scans as the count.
func cypherCount(graphName, query string) Statement {
	return Statement{SQL: fmt.Sprintf("SELECT count_result FROM cypher('%s', $$ %s $$) AS (count_result agtype)", graphName, query)}
}

// quoteCypherString renders a Go string as a single-quoted cypher
// literal. Properties are interpolated into the statement text
// because AGE cannot bind parameters inside the cypher dollar-quoted
// body.
func quoteCypherString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "$$", `\$\$`)
	return "'" + s + "'"
}

// cypherValue renders a row scalar as a cypher literal.
func cypherValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteCypherString(x)
	case []byte:
		return quoteCypherString(string(x))
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64, float32, int, int8, int16, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", x)
	default:
		return quoteCypherString(fmt.Sprintf("%v", x))
	}
}

// PGExecutor runs statements against the graph store through the
// connection manager, one batch per transaction.
type PGExecutor struct {
	mgr *store.Manager
}

func NewPGExecutor(mgr *store.Manager) *PGExecutor {
	return &PGExecutor{mgr: mgr}
}

func (e *PGExecutor) ExecBatch(ctx context.Context, stmts []Statement) error {
	return e.mgr.WithGraphTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt.SQL); err != nil {
				return fmt.Errorf("executing graph statement: %w", err)
			}
		}
		return nil
	})
}

func (e *PGExecutor) QueryCount(ctx context.Context, stmt Statement) (int64, error) {
	pool, err := e.mgr.Graph(ctx)
	if err != nil {
		return 0, err
	}
	var raw string
	if err := pool.QueryRow(ctx, stmt.SQL).Scan(&raw); err != nil {
		return 0, fmt.Errorf("running verification query: %w", err)
	}
	var n int64
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, fmt.Errorf("parsing verification count %q: %w", raw, err)
	}
	return n, nil
}
