// Package identity derives stable numeric surrogate keys for rows that
// have no natural primary key. The id is a pure function of the declared
// hash columns, so any process in any run assigns the same id to the
// same logical row. Collisions are possible but vanishingly rare at the
// cardinalities involved; callers treat the id as a best-effort
// surrogate, not a cryptographic guarantee.
package identity

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Modulus keeps ids inside a 32-bit signed destination column.
const Modulus = 2147483647

const delimiter = "|"

// ComputeID returns the deterministic surrogate id for the given row.
// Hash columns are taken in lexicographically sorted order regardless of
// declaration order, each value coerced to its trimmed string form with
// "" substituted for absent or nil values. Every input, including
// all-nil, produces a defined id in [0, Modulus).
func ComputeID(row map[string]any, hashColumns []string) int32 {
	cols := make([]string, len(hashColumns))
	copy(cols, hashColumns)
	sort.Strings(cols)

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = coerce(row[col])
	}

	sum := md5.Sum([]byte(strings.Join(parts, delimiter)))
	return int32(binary.BigEndian.Uint64(sum[:8]) % Modulus)
}

// coerce renders a raw scalar as the trimmed string the digest is
// computed over. Floats that hold integral values print without a
// fractional part so numeric source columns hash identically whether
// the driver returned them as int or float.
func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case float32:
		return coerce(float64(t))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
