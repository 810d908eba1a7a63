package dataset

import "github.com/MickeyJ/fao-api-manager-sub001/internal/identity"

// areaCodes is the country/region reference table. Its surrogate ids are
// the foreign keys every observation dataset points at.
type areaCodes struct{}

func init() { Register(areaCodes{}) }

func (areaCodes) Name() string { return "area_codes" }

func (areaCodes) MigrationQuery() string {
	return `SELECT area_code, area, m49_code FROM area_codes ORDER BY area_code`
}

func (areaCodes) Columns() []string {
	return []string{"id", "area_code", "area", "area_code_m49"}
}

func (areaCodes) HashColumns() []string {
	return []string{"area_code"}
}

func (areaCodes) Clean(row Row) Row {
	row["area_code"] = CleanString(row["area_code"])
	row["area"] = CleanString(row["area"])
	// M49 codes arrive quoted in some dumps ('004)
	row["m49_code"] = rstripQuote(CleanString(row["m49_code"]))
	return row
}

func (d areaCodes) BuildRecord(row Row) ([]any, error) {
	areaCode, err := RequireInt(row, "area_code")
	if err != nil {
		return nil, err
	}
	return []any{
		identity.ComputeID(row, d.HashColumns()),
		areaCode,
		CleanString(row["area"]),
		NullIfEmpty(CleanString(row["m49_code"])),
	}, nil
}

func rstripQuote(s string) string {
	for len(s) > 0 && s[0] == '\'' {
		s = s[1:]
	}
	return s
}
