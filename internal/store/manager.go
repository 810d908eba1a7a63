package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/config"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/source"
)

// Manager owns the engine's three connection handles: the source
// database, the relational warehouse, and the graph store. Each is
// opened lazily on first use and shared for the rest of the run, so
// commands that touch only one store never pay for the others.
type Manager struct {
	cfg *config.Config

	mu              sync.Mutex
	src             *source.Pool
	warehouse       *pgxpool.Pool
	warehouseReader *source.Pool
	graph           *pgxpool.Pool
}

// NewManager creates a manager. No connections are opened until a
// store is first requested.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Source returns the source database pool, opening it on first call.
func (m *Manager) Source(ctx context.Context) (*source.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		return m.src, nil
	}

	p, err := source.NewPool(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to source: %w", err)
	}
	m.src = p
	return m.src, nil
}

// Warehouse returns the relational warehouse pool, opening it on first call.
func (m *Manager) Warehouse(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.warehouse != nil {
		return m.warehouse, nil
	}

	pool, err := newPGPool(ctx, m.cfg.WarehouseDSN(), m.cfg.Migration.MaxWarehouseConnections, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	logging.Debug("Connected to warehouse at %s", m.cfg.Warehouse.Host)
	m.warehouse = pool
	return m.warehouse, nil
}

// WarehouseReader returns a row-reading pool over the warehouse,
// opened on first call. The graph path pages its source rows through
// it.
func (m *Manager) WarehouseReader(ctx context.Context) (*source.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.warehouseReader != nil {
		return m.warehouseReader, nil
	}

	p, err := source.NewWarehousePool(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting warehouse reader: %w", err)
	}
	m.warehouseReader = p
	return m.warehouseReader, nil
}

// Graph returns the graph store pool, opening it on first call. Every
// physical connection the pool creates loads the AGE extension and
// sets the catalog search path before it is handed out; cypher calls
// resolve only when both are in place, and pools recycle connections
// so a one-time setup query is not enough.
func (m *Manager) Graph(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graph != nil {
		return m.graph, nil
	}

	searchPath := m.cfg.Graph.SearchPath
	init := func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "LOAD 'age'"); err != nil {
			return fmt.Errorf("loading age extension: %w", err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path = %s", searchPath)); err != nil {
			return fmt.Errorf("setting search path: %w", err)
		}
		return nil
	}

	pool, err := newPGPool(ctx, m.cfg.GraphDSN(), m.cfg.Migration.MaxGraphConnections, init)
	if err != nil {
		return nil, fmt.Errorf("connecting to graph store: %w", err)
	}
	logging.Debug("Connected to graph store at %s (graph %s)", m.cfg.Graph.Host, m.cfg.Graph.GraphName)
	m.graph = pool
	return m.graph, nil
}

// Close shuts down every pool that was opened. Safe to call multiple
// times and safe when some stores were never used.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		m.src.Close()
		m.src = nil
	}
	if m.warehouseReader != nil {
		m.warehouseReader.Close()
		m.warehouseReader = nil
	}
	if m.warehouse != nil {
		m.warehouse.Close()
		m.warehouse = nil
	}
	if m.graph != nil {
		m.graph.Close()
		m.graph = nil
	}
}

// WithWarehouseTx runs fn inside a warehouse transaction, committing
// on success and rolling back on error.
func (m *Manager) WithWarehouseTx(ctx context.Context, fn func(pgx.Tx) error) error {
	pool, err := m.Warehouse(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, pool, fn)
}

// WithGraphTx runs fn inside a graph store transaction.
func (m *Manager) WithGraphTx(ctx context.Context, fn func(pgx.Tx) error) error {
	pool, err := m.Graph(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, pool, fn)
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func newPGPool(ctx context.Context, dsn string, maxConns int, afterConnect func(context.Context, *pgx.Conn) error) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = int32(maxConns / 4)
	if afterConnect != nil {
		poolCfg.AfterConnect = afterConnect
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
