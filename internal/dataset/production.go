package dataset

import "github.com/MickeyJ/fao-api-manager-sub001/internal/identity"

// productionCropsLivestock holds production quantity observations
// (harvested area, yield, production) per area, item, element and year.
type productionCropsLivestock struct{}

func init() { Register(productionCropsLivestock{}) }

func (productionCropsLivestock) Name() string { return "production_crops_livestock" }

func (productionCropsLivestock) MigrationQuery() string {
	return `SELECT area_code, item_code, element_code, year, unit, value, flag
		FROM production_crops_livestock ORDER BY area_code, item_code, year`
}

func (productionCropsLivestock) Columns() []string {
	return []string{"id", "area_code_id", "item_code_id", "element_code", "year", "unit", "value", "flag"}
}

func (productionCropsLivestock) HashColumns() []string {
	return []string{"area_code", "element_code", "item_code", "year"}
}

func (productionCropsLivestock) Clean(row Row) Row {
	for _, col := range []string{"area_code", "item_code", "element_code", "year", "unit", "flag"} {
		row[col] = CleanString(row[col])
	}
	return row
}

func (d productionCropsLivestock) BuildRecord(row Row) ([]any, error) {
	elementCode, err := RequireInt(row, "element_code")
	if err != nil {
		return nil, err
	}
	year, err := RequireInt(row, "year")
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
		year,
		NullIfEmpty(CleanString(row["unit"])),
		value,
		NullIfEmpty(CleanString(row["flag"])),
	}, nil
}
