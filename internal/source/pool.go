// Package source reads tabular rows from the relational source store.
// It supports PostgreSQL and SQL Server sources behind one pool type,
// and file-backed datasets via the CSV loader.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	_ "github.com/microsoft/go-mssqldb"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/config"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
)

// Pool manages a pool of source database connections.
type Pool struct {
	db     *sql.DB
	dbType string
}

// NewPool opens a connection pool to the source database.
func NewPool(cfg *config.Config) (*Pool, error) {
	driverName := "pgx"
	if cfg.Source.Type == "mssql" {
		driverName = "sqlserver"
	}

	pool, err := open(driverName, cfg.SourceDSN(), cfg.Source.Type, cfg.Migration.MaxSourceConnections)
	if err != nil {
		return nil, err
	}

	logging.Info("Connected to %s source: %s:%d/%s",
		cfg.Source.Type, cfg.Source.Host, cfg.Source.Port, cfg.Source.Database)
	return pool, nil
}

// NewWarehousePool opens a read pool against the warehouse, used by
// the graph path to page rows back out of migrated tables.
func NewWarehousePool(cfg *config.Config) (*Pool, error) {
	pool, err := open("pgx", cfg.WarehouseDSN(), "postgres", cfg.Migration.MaxWarehouseConnections)
	if err != nil {
		return nil, err
	}

	logging.Info("Connected to warehouse reader: %s:%d/%s",
		cfg.Warehouse.Host, cfg.Warehouse.Port, cfg.Warehouse.Database)
	return pool, nil
}

func open(driverName, dsn, dbType string, maxConns int) (*Pool, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dbType, err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", dbType, err)
	}

	return &Pool{db: db, dbType: dbType}, nil
}

// Close closes all connections in the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// CountRows executes a count query and returns its single value.
func (p *Pool) CountRows(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return count, nil
}

// FetchPage executes query with a parameterized limit/offset window and
// returns the page's rows. A page shorter than limit means the source is
// exhausted.
func (p *Pool) FetchPage(ctx context.Context, query string, limit int, offset int64) ([]dataset.Row, error) {
	syntax := newSyntax(p.dbType)
	paged := syntax.pageQuery(query)
	args := syntax.pageArgs(limit, offset)

	rows, err := p.db.QueryContext(ctx, paged, args...)
	if err != nil {
		return nil, fmt.Errorf("page query at offset %d: %w", offset, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// LoadRows executes query and returns every row, for datasets small
// enough to clean and write from memory.
func (p *Pool) LoadRows(ctx context.Context, query string) ([]dataset.Row, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("source query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]dataset.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []dataset.Row
	ptrs := make([]any, len(cols))
	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(dataset.Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				// database/sql hands text columns back as []byte for
				// some drivers; normalize to string
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
