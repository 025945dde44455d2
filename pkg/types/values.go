package types

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// AppendValue appends a decoded value (JSON, msgpack or native Go) to the builder.
// A nil value appends NULL.
func AppendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		switch v := v.(type) {
		case bool:
			b.Append(v)
			return nil
		case string:
			return b.AppendValueFromString(v)
		}
		n, ok := asInt64(v)
		if !ok {
			return convError(v, b.Type())
		}
		b.Append(n != 0)
		return nil
	case *array.Int8Builder:
		n, err := signed(v, math.MinInt8, math.MaxInt8, b.Type())
		if err != nil {
			return err
		}
		b.Append(int8(n))
		return nil
	case *array.Int16Builder:
		n, err := signed(v, math.MinInt16, math.MaxInt16, b.Type())
		if err != nil {
			return err
		}
		b.Append(int16(n))
		return nil
	case *array.Int32Builder:
		n, err := signed(v, math.MinInt32, math.MaxInt32, b.Type())
		if err != nil {
			return err
		}
		b.Append(int32(n))
		return nil
	case *array.Int64Builder:
		n, err := signed(v, math.MinInt64, math.MaxInt64, b.Type())
		if err != nil {
			return err
		}
		b.Append(n)
		return nil
	case *array.Uint8Builder:
		n, err := unsigned(v, math.MaxUint8, b.Type())
		if err != nil {
			return err
		}
		b.Append(uint8(n))
		return nil
	case *array.Uint16Builder:
		n, err := unsigned(v, math.MaxUint16, b.Type())
		if err != nil {
			return err
		}
		b.Append(uint16(n))
		return nil
	case *array.Uint32Builder:
		n, err := unsigned(v, math.MaxUint32, b.Type())
		if err != nil {
			return err
		}
		b.Append(uint32(n))
		return nil
	case *array.Uint64Builder:
		n, err := unsigned(v, math.MaxUint64, b.Type())
		if err != nil {
			return err
		}
		b.Append(n)
		return nil
	case *array.Float32Builder:
		f, ok := asFloat64(v)
		if !ok {
			return convError(v, b.Type())
		}
		b.Append(float32(f))
		return nil
	case *array.Float64Builder:
		f, ok := asFloat64(v)
		if !ok {
			return convError(v, b.Type())
		}
		b.Append(f)
		return nil
	case *array.StringBuilder:
		b.Append(asString(v))
		return nil
	case *array.LargeStringBuilder:
		b.Append(asString(v))
		return nil
	case *array.BinaryBuilder:
		switch v := v.(type) {
		case []byte:
			b.Append(v)
		default:
			b.AppendString(asString(v))
		}
		return nil
	case *array.TimestampBuilder:
		unit := b.Type().(*arrow.TimestampType).Unit
		switch v := v.(type) {
		case time.Time:
			ts, err := arrow.TimestampFromTime(v, unit)
			if err != nil {
				return err
			}
			b.Append(ts)
			return nil
		case string:
			return b.AppendValueFromString(v)
		}
		n, ok := asInt64(v)
		if !ok {
			return convError(v, b.Type())
		}
		b.Append(arrow.Timestamp(n))
		return nil
	case *array.Date32Builder:
		switch v := v.(type) {
		case time.Time:
			b.Append(arrow.Date32FromTime(v))
			return nil
		case string:
			return b.AppendValueFromString(v)
		}
		n, ok := asInt64(v)
		if !ok {
			return convError(v, b.Type())
		}
		b.Append(arrow.Date32(n))
		return nil
	}
	return b.AppendValueFromString(asString(v))
}

// ValueAt returns the native Go value of the cell, nil for NULL.
func ValueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return uint64(a.Value(i))
	case *array.Uint16:
		return uint64(a.Value(i))
	case *array.Uint32:
		return uint64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	}
	return arr.GetOneForMarshal(i)
}

// JSONValueAt returns the cell value as a JSON compatible value:
// timestamps and dates are rendered as strings.
func JSONValueAt(arr arrow.Array, i int) any {
	switch v := ValueAt(arr, i).(type) {
	case time.Time:
		if arr.DataType().ID() == arrow.DATE32 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	default:
		return v
	}
}

// CopyValue appends the i-th cell of the array to the builder.
func CopyValue(b array.Builder, arr arrow.Array, i int) error {
	if arr.IsNull(i) {
		b.AppendNull()
		return nil
	}
	if arrow.TypeEqual(b.Type(), arr.DataType()) {
		switch b := b.(type) {
		case *array.TimestampBuilder:
			b.Append(arr.(*array.Timestamp).Value(i))
			return nil
		case *array.Date32Builder:
			b.Append(arr.(*array.Date32).Value(i))
			return nil
		}
	}
	return AppendValue(b, ValueAt(arr, i))
}

func signed(v any, lo, hi int64, dt arrow.DataType) (int64, error) {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, convError(v, dt)
		}
		v = n
	}
	n, ok := asInt64(v)
	if !ok || n < lo || n > hi {
		return 0, convError(v, dt)
	}
	return n, nil
}

func unsigned(v any, hi uint64, dt arrow.DataType) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		if n > hi {
			return 0, convError(v, dt)
		}
		return n, nil
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil || u > hi {
			return 0, convError(v, dt)
		}
		return u, nil
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil || u > hi {
			return 0, convError(v, dt)
		}
		return u, nil
	case *big.Int:
		if !n.IsUint64() || n.Uint64() > hi {
			return 0, convError(v, dt)
		}
		return n.Uint64(), nil
	}
	n, ok := asInt64(v)
	if !ok || n < 0 || uint64(n) > hi {
		return 0, convError(v, dt)
	}
	return uint64(n), nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), float64(int64(n)) == n
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case *big.Int:
		return n.Int64(), n.IsInt64()
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	if u, ok := v.(uint64); ok {
		return float64(u), true
	}
	i, ok := asInt64(v)
	return float64(i), ok
}

func asString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func convError(v any, dt arrow.DataType) error {
	return fmt.Errorf("cannot convert %v (%T) to %s", v, v, dt)
}
