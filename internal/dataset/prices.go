package dataset

import "github.com/MickeyJ/fao-api-manager-sub001/internal/identity"

// prices holds producer price observations per area, item, month and
// year. The surrogate id is derived from the full observation key; the
// area and item foreign keys are the reference tables' surrogate ids,
// recomputed here from the same code fields so no lookup is needed.
type prices struct{}

func init() { Register(prices{}) }

func (prices) Name() string { return "prices" }

func (prices) MigrationQuery() string {
	return `SELECT area_code, item_code, element_code, months_code, year, unit, value, flag
		FROM prices ORDER BY area_code, item_code, year`
}

func (prices) Columns() []string {
	return []string{"id", "area_code_id", "item_code_id", "element_code", "months_code", "year", "unit", "value", "flag"}
}

func (prices) HashColumns() []string {
	return []string{"area_code", "element_code", "item_code", "months_code", "year"}
}

func (prices) Clean(row Row) Row {
	for _, col := range []string{"area_code", "item_code", "element_code", "months_code", "year", "unit", "flag"} {
		row[col] = CleanString(row[col])
	}
	return row
}

func (d prices) BuildRecord(row Row) ([]any, error) {
	elementCode, err := RequireInt(row, "element_code")
	if err != nil {
		return nil, err
	}
	year, err := RequireInt(row, "year")
	if err != nil {
		return nil, err
	}
	monthsCode, err := CleanInt(row["months_code"])
	if err != nil {
		return nil, err
	}
	value, err := CleanFloat(row["value"])
	if err != nil {
		return nil, err
	}

	return []any{
		identity.ComputeID(row, d.HashColumns()),
		identity.ComputeID(row, []string{"area_code"}),
		identity.ComputeID(row, []string{"item_code"}),
		elementCode,
		monthsCode,
		year,
		NullIfEmpty(CleanString(row["unit"])),
		value,
		NullIfEmpty(CleanString(row["flag"])),
	}, nil
}
