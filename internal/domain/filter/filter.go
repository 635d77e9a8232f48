// Package filter centralizes construction of vector-store filter
// expressions. All string values pass through JSON escaping here; no other
// package may interpolate values into an expression.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Spec maps field names to scalar equality constraints. Clauses combine
// with logical AND; OR, ranges and negation are not supported.
type Spec map[string]any

// Expr renders the spec as a boolean filter expression, or "" for an empty
// spec (meaning match all). Numeric values are emitted unquoted; everything
// else is stringified and JSON-escaped, so a value containing quotes stays
// a single equality clause. Clause order is deterministic (sorted by key).
func Expr(spec Spec) (string, error) {
	if len(spec) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		clause, err := clause(k, spec[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, " and "), nil
}

func clause(key string, value any) (string, error) {
	switch v := value.(type) {
	case int:
		return fmt.Sprintf("%s == %d", key, v), nil
	case int32:
		return fmt.Sprintf("%s == %d", key, v), nil
	case int64:
		return fmt.Sprintf("%s == %d", key, v), nil
	case float32:
		return fmt.Sprintf("%s == %s", key, strconv.FormatFloat(float64(v), 'g', -1, 32)), nil
	case float64:
		return fmt.Sprintf("%s == %s", key, strconv.FormatFloat(v, 'g', -1, 64)), nil
	case string:
		return key + " == " + escape(v), nil
	case fmt.Stringer:
		return key + " == " + escape(v.String()), nil
	default:
		return "", fmt.Errorf("unsupported filter value type %T for field %q", value, key)
	}
}

// escape JSON-encodes a string value, including the surrounding quotes.
func escape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal of a string cannot fail; keep the fallback explicit.
		return strconv.Quote(s)
	}
	return string(b)
}
