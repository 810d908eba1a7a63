// Package writer loads prepared records into warehouse tables in
// resumable, idempotent chunks. Each chunk commits atomically together
// with its progress position, so a crash between chunks loses at most
// the chunk in flight, and insert-or-ignore semantics make replaying
// that chunk harmless.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/progress"
)

// Target is the destination side of a chunked load. ApplyChunk must
// insert the records and persist the progress position in one
// transaction; that atomicity is what makes resume positions
// trustworthy.
type Target interface {
	ApplyChunk(ctx context.Context, table string, columns []string, records [][]any, position, total int64) (inserted int64, err error)
	Progress(ctx context.Context, table string) (*progress.Entry, error)
	MarkCompleted(ctx context.Context, table string, total int64) error
}

// Counter receives row counts as chunks commit. Satisfied by
// progress.Tracker.
type Counter interface {
	Add(n int64)
	Finish()
}

// CounterFactory builds a counter once the writer knows a table's
// total and resume position; resumed rows are expected to be counted
// as already done.
type CounterFactory func(table string, total, resumed int64) Counter

// Result summarizes one table load.
type Result struct {
	Table     string
	Total     int64 // rows offered to the writer
	Resumed   int64 // rows skipped because a prior run already committed them
	Inserted  int64 // rows actually written
	Conflicts int64 // rows skipped by the database as already present
	Duration  time.Duration
}

// ChunkError reports which chunk of a load failed, carrying the offset
// a rerun will resume from.
type ChunkError struct {
	Table  string
	Offset int64
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("table %s: chunk at row %d: %v", e.Table, e.Offset, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Writer loads record slices into a Target in fixed-size chunks.
type Writer struct {
	target     Target
	chunkSize  int // 0 = size from row width
	newCounter CounterFactory
}

type Option func(*Writer)

// WithChunkSize pins the chunk size instead of deriving it from the
// records' estimated width.
func WithChunkSize(n int) Option {
	return func(w *Writer) { w.chunkSize = n }
}

// WithProgress attaches a live per-table progress display.
func WithProgress(f CounterFactory) Option {
	return func(w *Writer) { w.newCounter = f }
}

func New(target Target, opts ...Option) *Writer {
	w := &Writer{target: target}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write loads records into table. Records must be in the same stable
// order on every run; positions saved by one run are row offsets into
// the next run's slice.
//
// A table already marked completed is not touched. A table with saved
// in_progress state resumes past the committed prefix. Cancellation
// is honored between chunks, never inside one.
func (w *Writer) Write(ctx context.Context, table string, columns []string, records [][]any) (*Result, error) {
	start := time.Now()
	total := int64(len(records))
	res := &Result{Table: table, Total: total}

	entry, err := w.target.Progress(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("reading progress for %s: %w", table, err)
	}
	if entry.Completed() {
		logging.Info("Table %s already completed (%d rows), skipping", table, entry.LastRowProcessed)
		res.Resumed = entry.LastRowProcessed
		res.Duration = time.Since(start)
		return res, nil
	}

	var offset int64
	if entry != nil && entry.LastRowProcessed > 0 {
		offset = entry.LastRowProcessed
		if offset > total {
			offset = total
		}
		res.Resumed = offset
		logging.Info("Resuming %s from row %d of %d", table, offset, total)
	}

	var counter Counter
	if w.newCounter != nil {
		counter = w.newCounter(table, total, offset)
	}

	chunkSize := w.chunkSize
	if chunkSize <= 0 {
		chunkSize = chunkSizeFor(columns, records)
	}

	for offset < total {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, &ChunkError{Table: table, Offset: offset, Err: fmt.Errorf("load interrupted: %w", err)}
		}

		end := offset + int64(chunkSize)
		if end > total {
			end = total
		}
		chunk := records[offset:end]

		inserted, err := w.target.ApplyChunk(ctx, table, columns, chunk, end, total)
		if err != nil {
			res.Duration = time.Since(start)
			return res, &ChunkError{Table: table, Offset: offset, Err: err}
		}

		res.Inserted += inserted
		res.Conflicts += int64(len(chunk)) - inserted
		if counter != nil {
			counter.Add(int64(len(chunk)))
		}
		offset = end
	}

	if err := w.target.MarkCompleted(ctx, table, total); err != nil {
		return nil, fmt.Errorf("marking %s completed: %w", table, err)
	}
	if counter != nil {
		counter.Finish()
	}

	res.Duration = time.Since(start)
	logging.Debug("Table %s: %d inserted, %d conflicts, %d resumed",
		table, res.Inserted, res.Conflicts, res.Resumed)
	return res, nil
}
