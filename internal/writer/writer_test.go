package writer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/progress"
)

// fakeTarget keeps rows in memory keyed by the id in column 0 and
// mimics insert-or-ignore plus transactional chunk application.
type fakeTarget struct {
	rows    map[any]bool
	entries map[string]*progress.Entry

	applyCalls int
	failAtRow  int64 // fail the chunk containing this absolute row, 0 = never
	failErr    error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		rows:    make(map[any]bool),
		entries: make(map[string]*progress.Entry),
	}
}

func (f *fakeTarget) ApplyChunk(ctx context.Context, table string, columns []string, records [][]any, position, total int64) (int64, error) {
	f.applyCalls++

	chunkStart := position - int64(len(records))
	if f.failErr != nil && f.failAtRow >= chunkStart && f.failAtRow < position {
		// whole chunk rolls back, progress untouched
		return 0, f.failErr
	}

	var inserted int64
	for _, rec := range records {
		if !f.rows[rec[0]] {
			f.rows[rec[0]] = true
			inserted++
		}
	}
	f.entries[table] = &progress.Entry{
		TableName:        table,
		LastRowProcessed: position,
		TotalRows:        &total,
		Status:           progress.StatusInProgress,
	}
	return inserted, nil
}

func (f *fakeTarget) Progress(ctx context.Context, table string) (*progress.Entry, error) {
	return f.entries[table], nil
}

func (f *fakeTarget) MarkCompleted(ctx context.Context, table string, total int64) error {
	f.entries[table] = &progress.Entry{
		TableName:        table,
		LastRowProcessed: total,
		TotalRows:        &total,
		Status:           progress.StatusCompleted,
	}
	return nil
}

func makeRecords(n int) [][]any {
	records := make([][]any, n)
	for i := range records {
		records[i] = []any{int32(i + 1), fmt.Sprintf("row-%d", i)}
	}
	return records
}

var testColumns = []string{"id", "name"}

func TestWriteAllRows(t *testing.T) {
	target := newFakeTarget()
	w := New(target, WithChunkSize(100))

	res, err := w.Write(context.Background(), "prices", testColumns, makeRecords(250))
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if res.Inserted != 250 {
		t.Errorf("Inserted = %d, want 250", res.Inserted)
	}
	if res.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0", res.Conflicts)
	}
	if len(target.rows) != 250 {
		t.Errorf("destination has %d rows, want 250", len(target.rows))
	}
	if target.applyCalls != 3 {
		t.Errorf("applyCalls = %d, want 3 chunks", target.applyCalls)
	}
	if !target.entries["prices"].Completed() {
		t.Error("table not marked completed")
	}
}

func TestRerunIsNoOp(t *testing.T) {
	target := newFakeTarget()
	w := New(target, WithChunkSize(100))
	records := makeRecords(250)

	if _, err := w.Write(context.Background(), "prices", testColumns, records); err != nil {
		t.Fatal(err)
	}
	calls := target.applyCalls

	res, err := w.Write(context.Background(), "prices", testColumns, records)
	if err != nil {
		t.Fatalf("second Write() error: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("second run Inserted = %d, want 0", res.Inserted)
	}
	if target.applyCalls != calls {
		t.Error("completed table should not touch the destination")
	}
	if len(target.rows) != 250 {
		t.Errorf("destination has %d rows after rerun, want 250", len(target.rows))
	}
}

func TestChunkFailureLeavesResumePoint(t *testing.T) {
	// 3 chunks of 5000; a failure on row 7000 kills chunk 2. The
	// first chunk stays committed and the saved offset is 5000.
	target := newFakeTarget()
	target.failAtRow = 7000
	target.failErr = errors.New("deadlock detected")
	w := New(target, WithChunkSize(5000))

	_, err := w.Write(context.Background(), "production", testColumns, makeRecords(15000))
	if err == nil {
		t.Fatal("expected chunk failure")
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("error is %T, want *ChunkError", err)
	}
	if chunkErr.Offset != 5000 {
		t.Errorf("resume offset = %d, want 5000", chunkErr.Offset)
	}
	if !errors.Is(err, target.failErr) {
		t.Error("cause not preserved through ChunkError")
	}

	entry := target.entries["production"]
	if entry == nil || entry.LastRowProcessed != 5000 {
		t.Fatalf("persisted position = %+v, want 5000", entry)
	}
	if entry.Status != progress.StatusInProgress {
		t.Errorf("status = %s, want in_progress", entry.Status)
	}
	if len(target.rows) != 5000 {
		t.Errorf("destination has %d rows, want only the committed chunk", len(target.rows))
	}
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	records := makeRecords(15000)

	// Uninterrupted baseline.
	clean := newFakeTarget()
	if _, err := New(clean, WithChunkSize(5000)).Write(context.Background(), "prices", testColumns, records); err != nil {
		t.Fatal(err)
	}

	// Interrupted run, then resume.
	target := newFakeTarget()
	target.failAtRow = 7000
	target.failErr = errors.New("connection reset")
	w := New(target, WithChunkSize(5000))
	if _, err := w.Write(context.Background(), "prices", testColumns, records); err == nil {
		t.Fatal("expected first run to fail")
	}

	target.failErr = nil
	res, err := w.Write(context.Background(), "prices", testColumns, records)
	if err != nil {
		t.Fatalf("resume Write() error: %v", err)
	}
	if res.Resumed != 5000 {
		t.Errorf("Resumed = %d, want 5000", res.Resumed)
	}
	if res.Inserted != 10000 {
		t.Errorf("resume Inserted = %d, want 10000", res.Inserted)
	}
	if len(target.rows) != len(clean.rows) {
		t.Errorf("resumed state has %d rows, uninterrupted has %d", len(target.rows), len(clean.rows))
	}
	if !target.entries["prices"].Completed() {
		t.Error("resumed run did not complete the table")
	}
}

func TestConflictsCounted(t *testing.T) {
	target := newFakeTarget()
	// Pre-seed half the ids as already present.
	for i := 0; i < 100; i += 2 {
		target.rows[int32(i+1)] = true
	}

	res, err := New(target, WithChunkSize(50)).Write(context.Background(), "items", testColumns, makeRecords(100))
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 50 {
		t.Errorf("Inserted = %d, want 50", res.Inserted)
	}
	if res.Conflicts != 50 {
		t.Errorf("Conflicts = %d, want 50", res.Conflicts)
	}
}

func TestCancellationBetweenChunks(t *testing.T) {
	target := newFakeTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(target, WithChunkSize(100)).Write(ctx, "prices", testColumns, makeRecords(500))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatal("cancellation should report a resume offset")
	}
	if target.applyCalls != 0 {
		t.Error("no chunk should run after cancellation")
	}
}

type fakeCounter struct {
	table    string
	total    int64
	resumed  int64
	added    int64
	finished int
}

func (c *fakeCounter) Add(n int64) { c.added += n }
func (c *fakeCounter) Finish()     { c.finished++ }

func TestProgressCounterWiring(t *testing.T) {
	target := newFakeTarget()
	target.failAtRow = 7000
	target.failErr = errors.New("connection reset")

	var counters []*fakeCounter
	factory := func(table string, total, resumed int64) Counter {
		c := &fakeCounter{table: table, total: total, resumed: resumed}
		counters = append(counters, c)
		return c
	}
	w := New(target, WithChunkSize(5000), WithProgress(factory))
	records := makeRecords(15000)

	if _, err := w.Write(context.Background(), "prices", testColumns, records); err == nil {
		t.Fatal("expected first run to fail")
	}
	if len(counters) != 1 {
		t.Fatalf("got %d counters, want 1", len(counters))
	}
	first := counters[0]
	if first.table != "prices" || first.total != 15000 || first.resumed != 0 {
		t.Errorf("first counter = %+v", first)
	}
	if first.added != 5000 {
		t.Errorf("first run counted %d rows, want only the committed chunk", first.added)
	}
	if first.finished != 0 {
		t.Error("failed run must not finish the counter")
	}

	target.failErr = nil
	if _, err := w.Write(context.Background(), "prices", testColumns, records); err != nil {
		t.Fatal(err)
	}
	second := counters[1]
	if second.resumed != 5000 {
		t.Errorf("resume counter starts at %d, want 5000", second.resumed)
	}
	if second.added != 10000 {
		t.Errorf("resume run counted %d rows, want 10000", second.added)
	}
	if second.finished != 1 {
		t.Errorf("finished = %d, want 1", second.finished)
	}

	// A completed table is a fast no-op with no display.
	if _, err := w.Write(context.Background(), "prices", testColumns, records); err != nil {
		t.Fatal(err)
	}
	if len(counters) != 2 {
		t.Errorf("completed table should not build a counter, got %d", len(counters))
	}
}

func TestAdaptiveChunkSize(t *testing.T) {
	narrow := [][]any{{int32(1), "a"}}
	if got := chunkSizeFor([]string{"id", "v"}, narrow); got != maxChunkRows {
		t.Errorf("narrow rows: chunk size = %d, want %d", got, maxChunkRows)
	}

	wide := make([][]any, 1)
	bigCell := make([]byte, 64*1024)
	wide[0] = []any{int32(1), bigCell}
	if got := chunkSizeFor([]string{"id", "v"}, wide); got != minChunkRows {
		t.Errorf("wide rows: chunk size = %d, want floor %d", got, minChunkRows)
	}

	// Many columns tighten the parameter cap below the row targets.
	cols := make([]string, 40)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	if got := chunkSizeFor(cols, narrow); got != maxChunkParams/40 {
		t.Errorf("40 columns: chunk size = %d, want %d", got, maxChunkParams/40)
	}
}
