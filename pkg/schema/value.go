package schema

import (
	"errors"
	"fmt"
	"math"
)

// Value is one decoded signal value : int64, float64 or a
// named choice carried as string. An alias so that value maps
// interchange freely with decoded JSON documents.
type Value = any

// ValueMap holds the current values of one message keyed by signal name.
type ValueMap map[string]Value

// Clone returns a shallow copy of the map.
func (v ValueMap) Clone() ValueMap {
	out := make(ValueMap, len(v))
	for name, value := range v {
		out[name] = value
	}
	return out
}

var ErrValueType = errors.New("unsupported value type")

// Converts any numeric value to float64. JSON decoding hands
// back float64, user code may pass any integer flavour.
func toFloat(value Value) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w : %T", ErrValueType, value)
	}
}

func isWhole(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}
