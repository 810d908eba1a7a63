// Package pipeline orchestrates one dataset's load, clean and write
// pass against the warehouse.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/source"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/writer"
)

// RowLoader reads all of a dataset's source rows.
type RowLoader interface {
	Load(ctx context.Context, ds dataset.Dataset) ([]dataset.Row, error)
}

// RecordWriter loads prepared records into a warehouse table.
// Satisfied by writer.Writer.
type RecordWriter interface {
	Write(ctx context.Context, table string, columns []string, records [][]any) (*writer.Result, error)
}

// Pipeline runs datasets end to end: source rows in, canonical
// records out, chunked loads into the warehouse.
type Pipeline struct {
	loader RowLoader
	writer RecordWriter
}

func New(loader RowLoader, w RecordWriter) *Pipeline {
	return &Pipeline{loader: loader, writer: w}
}

// Run migrates one dataset. Rows that fail transformation abort the
// run before anything is written; a dataset either transforms cleanly
// or not at all, so resume offsets always refer to the same record
// sequence.
func (p *Pipeline) Run(ctx context.Context, ds dataset.Dataset) (*writer.Result, error) {
	logging.Info("Dataset %s: loading source rows", ds.Name())
	rows, err := p.loader.Load(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ds.Name(), err)
	}
	logging.Info("Dataset %s: %d source rows", ds.Name(), len(rows))

	records, err := Transform(ds, rows)
	if err != nil {
		return nil, err
	}

	return p.writer.Write(ctx, ds.Name(), ds.Columns(), records)
}

// Transform cleans and builds every row up front. The error names the
// offending row position so operators can find it in the source.
func Transform(ds dataset.Dataset, rows []dataset.Row) ([][]any, error) {
	records := make([][]any, 0, len(rows))
	for i, row := range rows {
		rec, err := ds.BuildRecord(ds.Clean(row))
		if err != nil {
			return nil, fmt.Errorf("dataset %s row %d: %w", ds.Name(), i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DBLoader reads dataset rows from the source database using each
// dataset's migration query.
type DBLoader struct {
	pool *source.Pool
}

func NewDBLoader(pool *source.Pool) *DBLoader {
	return &DBLoader{pool: pool}
}

func (l *DBLoader) Load(ctx context.Context, ds dataset.Dataset) ([]dataset.Row, error) {
	return l.pool.LoadRows(ctx, ds.MigrationQuery())
}

// CSVLoader reads dataset rows from per-dataset CSV dumps in a
// directory, for environments without a live source database.
type CSVLoader struct {
	dir string
}

func NewCSVLoader(dir string) *CSVLoader {
	return &CSVLoader{dir: dir}
}

func (l *CSVLoader) Load(ctx context.Context, ds dataset.Dataset) ([]dataset.Row, error) {
	path := filepath.Join(l.dir, ds.Name()+".csv")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset file %s: %w", path, err)
	}
	return source.LoadCSV(path)
}
