package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// CleanString returns the trimmed string form of a raw scalar, or ""
// for nil.
func CleanString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// NullIfEmpty maps "" to nil so empty source cells land as SQL NULL.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CleanFloat parses a raw scalar as float64. Empty and nil values
// return (nil, nil) for SQL NULL.
func CleanFloat(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string, []byte:
		s := CleanString(t)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as number: %w", s, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to number", v)
	}
}

// CleanInt parses a raw scalar as int64. Empty and nil values return
// (nil, nil) for SQL NULL. Integral floats are accepted; fractional
// values are an error.
func CleanInt(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return nil, fmt.Errorf("cannot coerce fractional value %v to integer", t)
		}
		return int64(t), nil
	case string, []byte:
		s := CleanString(t)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as integer: %w", s, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
}

// RequireInt is CleanInt with NULL rejected, for columns that must be
// present (years, codes).
func RequireInt(row Row, col string) (int64, error) {
	v, err := CleanInt(row[col])
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	if v == nil {
		return 0, fmt.Errorf("column %s: required value is empty", col)
	}
	return v.(int64), nil
}
