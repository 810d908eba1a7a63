package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/store"
)

// fakeRows serves a fixed row set with a possibly stale count.
type fakeRows struct {
	rows       []dataset.Row
	countValue int64 // reported count, may exceed len(rows)
}

func (f *fakeRows) CountRows(ctx context.Context, query string) (int64, error) {
	return f.countValue, nil
}

func (f *fakeRows) FetchPage(ctx context.Context, query string, limit int, offset int64) ([]dataset.Row, error) {
	if offset >= int64(len(f.rows)) {
		return nil, nil
	}
	end := offset + int64(limit)
	if end > int64(len(f.rows)) {
		end = int64(len(f.rows))
	}
	return f.rows[offset:end], nil
}

func (f *fakeRows) LoadRows(ctx context.Context, query string) ([]dataset.Row, error) {
	return f.rows, nil
}

// fakeExecutor records executed batches and can fail a given batch.
type fakeExecutor struct {
	batches     [][]Statement
	failAtBatch int // 1-based, 0 = never
	counts      map[string]int64
}

func (f *fakeExecutor) ExecBatch(ctx context.Context, stmts []Statement) error {
	if f.failAtBatch > 0 && len(f.batches)+1 == f.failAtBatch {
		return errors.New("graph store unavailable")
	}
	f.batches = append(f.batches, stmts)
	return nil
}

func (f *fakeExecutor) QueryCount(ctx context.Context, stmt Statement) (int64, error) {
	if f.counts == nil {
		return 10, nil
	}
	return f.counts[stmt.SQL], nil
}

// countingSink records how many events arrived. Sinks never return
// errors, so a broken one is indistinguishable from this to the
// migrator.
type countingSink struct {
	calls int
}

func (s *countingSink) Record(ctx context.Context, ev store.ProgressEvent) {
	s.calls++
}

func observationRows(n int) []dataset.Row {
	rows := make([]dataset.Row, n)
	for i := range rows {
		rows[i] = dataset.Row{
			"id":           int32(i + 1),
			"area_code_id": int32(100 + i),
			"item_code_id": int32(200 + i),
			"element_code": int64(5510),
			"year":         int64(2019),
			"unit":         "t",
			"value":        float64(i) + 0.5,
			"flag":         "A",
		}
	}
	return rows
}

func TestRunMigratesAllPages(t *testing.T) {
	src := &fakeRows{rows: observationRows(250), countValue: 250}
	exec := &fakeExecutor{}
	sink := &countingSink{}
	m := NewMigrator(src, exec, sink)

	res, err := m.Run(context.Background(), NewProducesRelation("fao_graph"), RunOptions{Mode: ModeCreate, BatchSize: 100})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.RecordsProcessed != 250 {
		t.Errorf("RecordsProcessed = %d, want 250", res.RecordsProcessed)
	}
	if res.Batches != 3 {
		t.Errorf("Batches = %d, want 3", res.Batches)
	}
	if m.State() != StateDone {
		t.Errorf("final state = %s, want done", m.State())
	}
	if sink.calls != 3 {
		t.Errorf("event sink got %d events, want one per batch", sink.calls)
	}
}

func TestShortPageTermination(t *testing.T) {
	// Count says 1000 but only 950 rows exist; the loop must stop on
	// the short page without probing out-of-range offsets.
	src := &fakeRows{rows: observationRows(950), countValue: 1000}
	exec := &fakeExecutor{}
	m := NewMigrator(src, exec, nil)

	res, err := m.Run(context.Background(), NewProducesRelation("fao_graph"), RunOptions{BatchSize: 100})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.RecordsProcessed != 950 {
		t.Errorf("RecordsProcessed = %d, want 950", res.RecordsProcessed)
	}
	if res.Batches != 10 {
		t.Errorf("Batches = %d, want 10 (nine full pages and one short)", res.Batches)
	}
	if m.State() != StateDone {
		t.Errorf("final state = %s, want done", m.State())
	}
}

func TestBatchFailureEmbedsResumeOffset(t *testing.T) {
	src := &fakeRows{rows: observationRows(300), countValue: 300}
	exec := &fakeExecutor{failAtBatch: 3}
	m := NewMigrator(src, exec, nil)

	_, err := m.Run(context.Background(), NewProducesRelation("fao_graph"), RunOptions{BatchSize: 100})
	if err == nil {
		t.Fatal("expected batch failure")
	}

	var migErr *MigrationError
	if !errors.As(err, &migErr) {
		t.Fatalf("error is %T, want *MigrationError", err)
	}
	if migErr.Offset != 200 {
		t.Errorf("resume offset = %d, want 200", migErr.Offset)
	}
	if m.State() != StateFailed {
		t.Errorf("state = %s, want failed", m.State())
	}
}

func TestResumeFromOffset(t *testing.T) {
	src := &fakeRows{rows: observationRows(300), countValue: 300}
	exec := &fakeExecutor{}
	m := NewMigrator(src, exec, nil)

	res, err := m.Run(context.Background(), NewProducesRelation("fao_graph"), RunOptions{BatchSize: 100, StartOffset: 200})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.RecordsProcessed != 100 {
		t.Errorf("RecordsProcessed = %d, want only the last page", res.RecordsProcessed)
	}
}

func TestCancellationReportsOffset(t *testing.T) {
	src := &fakeRows{rows: observationRows(300), countValue: 300}
	exec := &fakeExecutor{}
	m := NewMigrator(src, exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx, NewProducesRelation("fao_graph"), RunOptions{BatchSize: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var migErr *MigrationError
	if !errors.As(err, &migErr) {
		t.Fatal("cancellation should carry a resume offset")
	}
	if migErr.Offset != 0 {
		t.Errorf("resume offset = %d, want 0", migErr.Offset)
	}
}

func TestRunNodesSingleTransaction(t *testing.T) {
	rows := []dataset.Row{
		{"id": int32(5021), "area_code": int64(2), "area": "Afghanistan", "area_code_m49": "004"},
		{"id": int32(5044), "area_code": int64(3), "area": "Albania", "area_code_m49": "008"},
	}
	src := &fakeRows{rows: rows, countValue: int64(len(rows))}
	exec := &fakeExecutor{}
	m := NewMigrator(src, exec, nil)

	res, err := m.RunNodes(context.Background(), NewAreaNodes("fao_graph"))
	if err != nil {
		t.Fatalf("RunNodes() error: %v", err)
	}
	if res.Batches != 1 {
		t.Errorf("Batches = %d, want 1", res.Batches)
	}
	if len(exec.batches) != 1 || len(exec.batches[0]) != 1 {
		t.Fatalf("node migration must execute one bulk statement, got %d batches", len(exec.batches))
	}
	sql := exec.batches[0][0].SQL
	if !contains(sql, "UNWIND") || !contains(sql, ":Area") {
		t.Errorf("unexpected bulk statement: %s", sql)
	}
}

func TestModeDispatch(t *testing.T) {
	rows := observationRows(1)
	rel := NewProducesRelation("fao_graph")

	create, err := rel.BuildStatements(rows, ModeCreate)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(create[0].SQL, "CREATE (a)-[:PRODUCES") {
		t.Errorf("create mode statement: %s", create[0].SQL)
	}

	update, err := rel.BuildStatements(rows, ModeUpdate)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(update[0].SQL, "SET r += ") {
		t.Errorf("update mode statement: %s", update[0].SQL)
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"create", "update"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseMode("merge"); err == nil {
		t.Error("ParseMode(merge) should fail")
	}
}

func TestQuoteCypherString(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Albania", "'Albania'"},
		{"Cote d'Ivoire", `'Cote d\'Ivoire'`},
		{`back\slash`, `'back\\slash'`},
	}
	for _, tc := range cases {
		if got := quoteCypherString(tc.in); got != tc.want {
			t.Errorf("quoteCypherString(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
