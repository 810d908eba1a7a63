package source

import "database/sql"

// syntax provides dialect-aware SQL helpers for the source store.
type syntax struct {
	dbType string
}

func newSyntax(dbType string) syntax {
	return syntax{dbType: dbType}
}

// pageQuery appends a parameterized limit/offset window to a base query.
// SQL Server requires the query to carry an ORDER BY clause, which every
// dataset migration query does: stable ordering is what makes offsets
// usable as resume points.
func (s syntax) pageQuery(base string) string {
	if s.dbType == "mssql" {
		return base + " OFFSET @offset ROWS FETCH NEXT @limit ROWS ONLY"
	}
	return base + " LIMIT $1 OFFSET $2"
}

func (s syntax) pageArgs(limit int, offset int64) []any {
	if s.dbType == "mssql" {
		return []any{
			sql.Named("offset", offset),
			sql.Named("limit", limit),
		}
	}
	return []any{limit, offset}
}
