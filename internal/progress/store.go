// Package progress persists per-table migration positions so an
// interrupted run can resume where it stopped instead of starting
// over. State lives in the warehouse itself, next to the migrated
// data, so the position a run resumes from was committed in the same
// transaction as the rows it covers.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Statuses recorded in pipeline_progress.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Entry is one table's saved migration position.
type Entry struct {
	TableName        string
	LastRowProcessed int64
	TotalRows        *int64
	Status           string
	UpdatedAt        time.Time
}

// Completed reports whether the table's migration finished.
func (e *Entry) Completed() bool {
	return e != nil && e.Status == StatusCompleted
}

// Store reads and writes pipeline_progress rows.
type Store struct {
	pool        *pgxpool.Pool
	tableExists bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS pipeline_progress (
		id SERIAL PRIMARY KEY,
		table_name TEXT NOT NULL UNIQUE,
		last_row_processed BIGINT NOT NULL DEFAULT 0,
		total_rows BIGINT,
		status TEXT NOT NULL DEFAULT 'in_progress',
		last_chunk_time TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

const saveChunkSQL = `
	INSERT INTO pipeline_progress (table_name, last_row_processed, total_rows, status, last_chunk_time, updated_at)
	VALUES ($1, $2, $3, $4, now(), now())
	ON CONFLICT (table_name) DO UPDATE SET
		last_row_processed = GREATEST(pipeline_progress.last_row_processed, EXCLUDED.last_row_processed),
		total_rows = EXCLUDED.total_rows,
		status = EXCLUDED.status,
		last_chunk_time = now(),
		updated_at = now()`

func (s *Store) ensureTable(ctx context.Context) error {
	if s.tableExists {
		return nil
	}
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating pipeline_progress table: %w", err)
	}
	s.tableExists = true
	return nil
}

// Get returns the saved entry for a table, or nil if the table has
// never been migrated.
func (s *Store) Get(ctx context.Context, tableName string) (*Entry, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	var e Entry
	err := s.pool.QueryRow(ctx, `
		SELECT table_name, last_row_processed, total_rows, status, updated_at
		FROM pipeline_progress WHERE table_name = $1`, tableName).
		Scan(&e.TableName, &e.LastRowProcessed, &e.TotalRows, &e.Status, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress for %s: %w", tableName, err)
	}
	return &e, nil
}

// SaveChunk records that rows up to position have been committed for
// tableName. The saved position only moves forward: a slow concurrent
// writer replaying an old chunk cannot rewind it.
func (s *Store) SaveChunk(ctx context.Context, tx pgx.Tx, tableName string, position, totalRows int64) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, saveChunkSQL, tableName, position, totalRows, StatusInProgress)
	if err != nil {
		return fmt.Errorf("saving progress for %s: %w", tableName, err)
	}
	return nil
}

// MarkCompleted flags a table's migration as finished.
func (s *Store) MarkCompleted(ctx context.Context, tableName string, totalRows int64) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_progress (table_name, last_row_processed, total_rows, status, updated_at)
		VALUES ($1, $2, $2, $3, now())
		ON CONFLICT (table_name) DO UPDATE SET
			last_row_processed = GREATEST(pipeline_progress.last_row_processed, EXCLUDED.last_row_processed),
			total_rows = EXCLUDED.total_rows,
			status = EXCLUDED.status,
			updated_at = now()`,
		tableName, totalRows, StatusCompleted)
	if err != nil {
		return fmt.Errorf("marking %s completed: %w", tableName, err)
	}
	return nil
}

// Reset removes a table's saved position so the next run starts from
// the beginning. Insert-or-ignore semantics make the rerun safe even
// when the data is still present.
func (s *Store) Reset(ctx context.Context, tableName string) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pipeline_progress WHERE table_name = $1`, tableName)
	if err != nil {
		return fmt.Errorf("resetting progress for %s: %w", tableName, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no progress recorded for table %s", tableName)
	}
	return nil
}

// List returns every saved entry ordered by table name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT table_name, last_row_processed, total_rows, status, updated_at
		FROM pipeline_progress ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TableName, &e.LastRowProcessed, &e.TotalRows, &e.Status, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning progress row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
