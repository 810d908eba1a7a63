package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/writer"
)

type stubLoader struct {
	rows []dataset.Row
	err  error
}

func (s stubLoader) Load(ctx context.Context, ds dataset.Dataset) ([]dataset.Row, error) {
	return s.rows, s.err
}

type stubWriter struct {
	table   string
	columns []string
	records [][]any
}

func (s *stubWriter) Write(ctx context.Context, table string, columns []string, records [][]any) (*writer.Result, error) {
	s.table = table
	s.columns = columns
	s.records = records
	return &writer.Result{Table: table, Total: int64(len(records)), Inserted: int64(len(records))}, nil
}

func priceRow(area, item, year string) dataset.Row {
	return dataset.Row{
		"area_code":    area,
		"item_code":    item,
		"element_code": "5530",
		"months_code":  "7021",
		"year":         year,
		"unit":         "LCU",
		"value":        "184.3",
		"flag":         "A",
	}
}

func TestRunTransformsAndWrites(t *testing.T) {
	ds, err := dataset.Get("prices")
	if err != nil {
		t.Fatal(err)
	}

	loader := stubLoader{rows: []dataset.Row{
		priceRow("2", "15", "2019"),
		priceRow("3", "15", "2019"),
	}}
	w := &stubWriter{}

	res, err := New(loader, w).Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", res.Inserted)
	}
	if w.table != "prices" {
		t.Errorf("wrote to table %s, want prices", w.table)
	}
	if len(w.records) != 2 || len(w.records[0]) != len(ds.Columns()) {
		t.Fatalf("records shape %dx%d, want 2x%d", len(w.records), len(w.records[0]), len(ds.Columns()))
	}
	if _, ok := w.records[0][0].(int32); !ok {
		t.Errorf("first column should be the surrogate id, got %T", w.records[0][0])
	}
}

func TestRunReportsBadRowPosition(t *testing.T) {
	ds, err := dataset.Get("prices")
	if err != nil {
		t.Fatal(err)
	}

	loader := stubLoader{rows: []dataset.Row{
		priceRow("2", "15", "2019"),
		priceRow("3", "15", "not-a-year"),
	}}

	_, err = New(loader, &stubWriter{}).Run(context.Background(), ds)
	if err == nil {
		t.Fatal("expected transform failure")
	}
	if !strings.Contains(err.Error(), "row 1") {
		t.Errorf("error should name the row position: %v", err)
	}
}

func TestRunPropagatesLoadError(t *testing.T) {
	ds, err := dataset.Get("prices")
	if err != nil {
		t.Fatal(err)
	}

	loadErr := errors.New("connection refused")
	_, err = New(stubLoader{err: loadErr}, &stubWriter{}).Run(context.Background(), ds)
	if !errors.Is(err, loadErr) {
		t.Errorf("error = %v, want wrapped load error", err)
	}
}

func TestCSVLoader(t *testing.T) {
	dir := t.TempDir()
	content := "area_code,item_code,element_code,months_code,year,unit,value,flag\n2,15,5530,7021,2019,LCU,184.3,A\n"
	if err := os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	ds, err := dataset.Get("prices")
	if err != nil {
		t.Fatal(err)
	}

	rows, err := NewCSVLoader(dir).Load(context.Background(), ds)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["area_code"] != "2" {
		t.Errorf("area_code = %v, want \"2\"", rows[0]["area_code"])
	}
}

func TestCSVLoaderMissingFile(t *testing.T) {
	ds, err := dataset.Get("prices")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewCSVLoader(t.TempDir()).Load(context.Background(), ds); err == nil {
		t.Fatal("expected error for missing dataset file")
	}
}
