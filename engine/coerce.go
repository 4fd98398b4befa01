package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toAnySlice(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		result := make([]any, len(values))
		for i, s := range values {
			result[i] = s
		}
		return result, true
	case []int:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	case []float64:
		result := make([]any, len(values))
		for i, f := range values {
			result[i] = f
		}
		return result, true
	default:
		return nil, false
	}
}

// toTime parses timestamps in the forms accepted on the wire: time.Time,
// ISO-8601 / date strings, and epoch seconds as any numeric type.
func toTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case time.Time:
		return n, true
	case float32:
		return time.Unix(int64(n), 0).UTC(), true
	case float64:
		return time.Unix(int64(n), 0).UTC(), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0).UTC(), true
		}
		t, err := cast.ToTimeE(n.String())
		return t, err == nil
	case string, int, int32, int64:
		t, err := cast.ToTimeE(n)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// looseEqual compares two values with numeric widening: 25 (int) equals
// 25.0 (float64). Slices and maps compare element-wise; everything else
// falls back to deep equality.
func looseEqual(a, b any) bool {
	if af, ok := toFloat64(a); ok {
		bf, ok := toFloat64(b)
		return ok && af == bf
	}
	if as, ok := toAnySlice(a); ok {
		bs, ok := toAnySlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !looseEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := a.(map[string]any); ok {
		bm, ok := b.(map[string]any)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !looseEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
