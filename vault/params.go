package vault

import (
	"fmt"
	"math"
	"sort"
)

// Params is a flat mapping of field name to scalar value. After Compact,
// values are one of string, int64, float64 or bool.
type Params map[string]any

// Compact returns a copy of p without nil values and with every number
// widened to int64 or float64. Non-scalar values are rejected.
func Compact(p Params) (Params, error) {
	out := make(Params, len(p))
	for key, value := range p {
		if value == nil {
			continue
		}
		normalized, err := normalizeScalar(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidParams, key, err)
		}
		out[key] = normalized
	}
	return out, nil
}

// Keys returns the field names of p in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string field key, or "" when absent or not a string.
func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Int returns the integer field key. Whole float64 values are accepted.
func (p Params) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

func normalizeScalar(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintToInt64(v)
	case float32:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite number")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

func uintToInt64(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("integer overflows int64")
	}
	return int64(v), nil
}
