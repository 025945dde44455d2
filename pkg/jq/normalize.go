package jq

import (
	"math"
	"math/big"
	"time"

	"github.com/goccy/go-json"
)

// Normalize converts Go values into the values understood by gojq.
func Normalize(v any) any {
	switch v := v.(type) {
	case nil, bool, string, int, float64, *big.Int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return new(big.Int).SetInt64(v)
		}
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint:
		return normalizeUint(uint64(v))
	case uint64:
		return normalizeUint(v)
	case float32:
		return float64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Normalize(i)
		}
		f, _ := v.Float64()
		return f
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Normalize(val)
		}
		return out
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func normalizeUint(v uint64) any {
	if v > math.MaxInt {
		return new(big.Int).SetUint64(v)
	}
	return int(v)
}
