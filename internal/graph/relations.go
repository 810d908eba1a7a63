package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
)

// relations and nodeSets index the known graph migrations by name.
var (
	relations = map[string]Relation{}
	nodeSets  = map[string]NodeSet{}
)

func registerRelation(r Relation) { relations[r.Name()] = r }
func registerNodeSet(n NodeSet)   { nodeSets[n.Name()] = n }

// GetRelation looks up a relationship migration by its label.
func GetRelation(name string) (Relation, error) {
	r, ok := relations[name]
	if !ok {
		return nil, fmt.Errorf("unknown relation: %s (known: %s)", name, strings.Join(RelationNames(), ", "))
	}
	return r, nil
}

// GetNodeSet looks up a node migration by its label.
func GetNodeSet(name string) (NodeSet, error) {
	n, ok := nodeSets[name]
	if !ok {
		return nil, fmt.Errorf("unknown node set: %s (known: %s)", name, strings.Join(NodeSetNames(), ", "))
	}
	return n, nil
}

func RelationNames() []string {
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NodeSetNames() []string {
	names := make([]string, 0, len(nodeSets))
	for name := range nodeSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// observationRelation covers the common shape of FAO observation
// tables: an Area connected to an Item with per-year measurement
// properties on the edge.
type observationRelation struct {
	name      string // edge label
	table     string
	graphName string
	props     []string // edge property columns beyond the join keys
}

func (r observationRelation) Name() string  { return r.name }
func (r observationRelation) Table() string { return r.table }

// CountQuery counts migratable rows. Zero and null values carry no
// signal as edges, so only positive observations migrate.
func (r observationRelation) CountQuery() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE value > 0", r.table)
}

func (r observationRelation) PageQuery() string {
	cols := append([]string{"id", "area_code_id", "item_code_id"}, r.props...)
	return fmt.Sprintf("SELECT %s FROM %s WHERE value > 0 ORDER BY id",
		strings.Join(cols, ", "), r.table)
}

func (r observationRelation) BuildStatements(rows []dataset.Row, mode Mode) ([]Statement, error) {
	stmts := make([]Statement, 0, len(rows))
	for _, row := range rows {
		areaID, ok := row["area_code_id"]
		if !ok || areaID == nil {
			return nil, fmt.Errorf("row %v missing area_code_id", row["id"])
		}
		itemID, ok := row["item_code_id"]
		if !ok || itemID == nil {
			return nil, fmt.Errorf("row %v missing item_code_id", row["id"])
		}

		props := r.edgeProps(row)
		var q string
		switch mode {
		case ModeUpdate:
			q = fmt.Sprintf(
				"MATCH (a:Area {id: %s})-[r:%s {source_id: %s}]->(i:Item {id: %s}) SET r += {%s}",
				cypherValue(areaID), r.name, cypherValue(row["id"]), cypherValue(itemID), props)
		default:
			q = fmt.Sprintf(
				"MATCH (a:Area {id: %s}), (i:Item {id: %s}) CREATE (a)-[:%s {source_id: %s, %s}]->(i)",
				cypherValue(areaID), cypherValue(itemID), r.name, cypherValue(row["id"]), props)
		}
		stmts = append(stmts, cypher(r.graphName, q))
	}
	return stmts, nil
}

func (r observationRelation) edgeProps(row dataset.Row) string {
	parts := make([]string, 0, len(r.props))
	for _, col := range r.props {
		parts = append(parts, fmt.Sprintf("%s: %s", col, cypherValue(row[col])))
	}
	return strings.Join(parts, ", ")
}

func (r observationRelation) VerifyChecks() []VerifyCheck {
	return []VerifyCheck{
		{
			Name:      fmt.Sprintf("%s edge count", r.name),
			Statement: cypherCount(r.graphName, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", r.name)),
			Min:       1,
		},
	}
}

// NewProducesRelation connects areas to the items they produce, with
// the production observation on the edge.
func NewProducesRelation(graphName string) Relation {
	return observationRelation{
		name:      "PRODUCES",
		table:     "production_crops_livestock",
		graphName: graphName,
		props:     []string{"element_code", "year", "unit", "value", "flag"},
	}
}

// NewPricedAtRelation connects areas to items through producer price
// observations.
func NewPricedAtRelation(graphName string) Relation {
	return observationRelation{
		name:      "PRICED_AT",
		table:     "prices",
		graphName: graphName,
		props:     []string{"element_code", "months_code", "year", "unit", "value", "flag"},
	}
}

// Register the built-in migrations for the default graph. The graph
// name is fixed at registration; commands using a non-default graph
// construct relations directly.
func RegisterDefaults(graphName string) {
	registerRelation(NewProducesRelation(graphName))
	registerRelation(NewPricedAtRelation(graphName))
	registerNodeSet(NewAreaNodes(graphName))
	registerNodeSet(NewItemNodes(graphName))
}
