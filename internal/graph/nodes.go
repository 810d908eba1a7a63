package graph

import (
	"fmt"
	"strings"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
)

// referenceNodes covers node labels backed by a warehouse reference
// table: one node per row, properties copied straight across.
type referenceNodes struct {
	label     string
	table     string
	graphName string
	props     []string // first entry is the id column
}

func (n referenceNodes) Name() string { return n.label }

func (n referenceNodes) Query() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(n.props, ", "), n.table)
}

// BuildStatements renders the whole node set as one bulk UNWIND
// create so it executes in a single transaction.
func (n referenceNodes) BuildStatements(rows []dataset.Row) ([]Statement, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	entries := make([]string, 0, len(rows))
	for _, row := range rows {
		if row[n.props[0]] == nil {
			return nil, fmt.Errorf("%s row missing id: %v", n.label, row)
		}
		parts := make([]string, 0, len(n.props))
		for _, col := range n.props {
			parts = append(parts, fmt.Sprintf("%s: %s", col, cypherValue(row[col])))
		}
		entries = append(entries, "{"+strings.Join(parts, ", ")+"}")
	}

	q := fmt.Sprintf("UNWIND [%s] AS row CREATE (:%s {%s})",
		strings.Join(entries, ", "), n.label, n.rowProps())
	return []Statement{cypher(n.graphName, q)}, nil
}

func (n referenceNodes) rowProps() string {
	parts := make([]string, 0, len(n.props))
	for _, col := range n.props {
		parts = append(parts, fmt.Sprintf("%s: row.%s", col, col))
	}
	return strings.Join(parts, ", ")
}

func (n referenceNodes) VerifyChecks() []VerifyCheck {
	return []VerifyCheck{
		{
			Name:      fmt.Sprintf("%s node count", n.label),
			Statement: cypherCount(n.graphName, fmt.Sprintf("MATCH (n:%s) RETURN count(n)", n.label)),
			Min:       1,
		},
	}
}

// NewAreaNodes migrates the area reference table to Area nodes.
func NewAreaNodes(graphName string) NodeSet {
	return referenceNodes{
		label:     "Area",
		table:     "area_codes",
		graphName: graphName,
		props:     []string{"id", "area_code", "area", "area_code_m49"},
	}
}

// NewItemNodes migrates the item reference table to Item nodes.
func NewItemNodes(graphName string) NodeSet {
	return referenceNodes{
		label:     "Item",
		table:     "item_codes",
		graphName: graphName,
		props:     []string{"id", "item_code", "item", "item_code_cpc"},
	}
}
