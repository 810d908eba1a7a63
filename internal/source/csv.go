package source

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
)

// LoadCSV reads a headered CSV dump into source rows, for datasets
// distributed as bulk files rather than live tables.
func LoadCSV(path string) ([]dataset.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are tolerated; missing cells become absent keys

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s has no header row", path)
	}

	header := records[0]
	rows := make([]dataset.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(dataset.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
