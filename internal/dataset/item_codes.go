package dataset

import "github.com/MickeyJ/fao-api-manager-sub001/internal/identity"

// itemCodes is the commodity reference table.
type itemCodes struct{}

func init() { Register(itemCodes{}) }

func (itemCodes) Name() string { return "item_codes" }

func (itemCodes) MigrationQuery() string {
	return `SELECT item_code, item, cpc_code FROM item_codes ORDER BY item_code`
}

func (itemCodes) Columns() []string {
	return []string{"id", "item_code", "item", "item_code_cpc"}
}

func (itemCodes) HashColumns() []string {
	return []string{"item_code"}
}

func (itemCodes) Clean(row Row) Row {
	row["item_code"] = CleanString(row["item_code"])
	row["item"] = CleanString(row["item"])
	row["cpc_code"] = rstripQuote(CleanString(row["cpc_code"]))
	return row
}

func (d itemCodes) BuildRecord(row Row) ([]any, error) {
	itemCode, err := RequireInt(row, "item_code")
	if err != nil {
		return nil, err
	}
	return []any{
		identity.ComputeID(row, d.HashColumns()),
		itemCode,
		CleanString(row["item"]),
		NullIfEmpty(CleanString(row["cpc_code"])),
	}, nil
}
