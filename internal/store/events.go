package store

import (
	"context"
	"runtime"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
)

// ProgressEvent is one diagnostic row describing a graph migration
// batch. Events are advisory; losing them never affects the
// migration itself and they are never consulted for resume.
type ProgressEvent struct {
	MigrationType     string // "relationship" or "node"
	TableName         string
	RelationshipType  string
	BatchNumber       int
	BatchSize         int
	RecordsProcessed  int64
	SelectDurationMS  int64
	InsertDurationMS  int64
	TotalDurationMS   int64
	CumulativeRecords int64
	MemoryUsageMB     float64
	ErrorMessage      string
}

// eventExecer is the slice of pgxpool.Pool the recorder needs.
type eventExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createEventTableSQL = `
	CREATE TABLE IF NOT EXISTS migration_progress (
		id SERIAL PRIMARY KEY,
		migration_type TEXT NOT NULL,
		table_name TEXT NOT NULL,
		relationship_type TEXT,
		batch_number INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		records_processed BIGINT NOT NULL,
		select_duration_ms BIGINT NOT NULL,
		insert_duration_ms BIGINT NOT NULL,
		total_duration_ms BIGINT NOT NULL,
		cumulative_records BIGINT NOT NULL,
		memory_usage_mb DOUBLE PRECISION NOT NULL,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

const insertEventSQL = `
	INSERT INTO migration_progress (
		migration_type, table_name, relationship_type,
		batch_number, batch_size, records_processed,
		select_duration_ms, insert_duration_ms, total_duration_ms,
		cumulative_records, memory_usage_mb, error_message
	) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))`

// EventRecorder writes graph batch events to the migration_progress
// table, best effort. The first failure disables further attempts for
// the rest of the run, so a missing or broken table logs one warning
// instead of one per batch.
type EventRecorder struct {
	db       eventExecer
	created  bool
	disabled bool
}

func NewEventRecorder(pool *pgxpool.Pool) *EventRecorder {
	if pool == nil {
		return &EventRecorder{disabled: true}
	}
	return &EventRecorder{db: pool}
}

// Record writes one event. Never returns an error; a failure logs a
// warning and silences the recorder.
func (r *EventRecorder) Record(ctx context.Context, ev ProgressEvent) {
	if r.disabled {
		return
	}
	if !r.created {
		if _, err := r.db.Exec(ctx, createEventTableSQL); err != nil {
			r.disable(err)
			return
		}
		r.created = true
	}
	if ev.MemoryUsageMB == 0 {
		ev.MemoryUsageMB = currentMemoryMB()
	}

	_, err := r.db.Exec(ctx, insertEventSQL,
		ev.MigrationType, ev.TableName, ev.RelationshipType,
		ev.BatchNumber, ev.BatchSize, ev.RecordsProcessed,
		ev.SelectDurationMS, ev.InsertDurationMS, ev.TotalDurationMS,
		ev.CumulativeRecords, ev.MemoryUsageMB, ev.ErrorMessage)
	if err != nil {
		r.disable(err)
	}
}

func (r *EventRecorder) disable(err error) {
	logging.Warn("Progress events disabled: %v", err)
	r.disabled = true
}

func currentMemoryMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1024 * 1024)
}
