package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

var ErrUnknownType = errors.New("unknown data type")

const defaultTimeZone = "UTC"

// ParseType parses a column type declaration like "Nullable(DateTime64(3))".
// It returns the arrow type and whether the column accepts NULL.
func ParseType(s string) (arrow.DataType, bool, error) {
	s = strings.TrimSpace(s)
	if inner, ok := typeArgs(s, "Nullable"); ok {
		dt, nullable, err := ParseType(inner)
		if err != nil {
			return nil, false, err
		}
		if nullable {
			return nil, false, fmt.Errorf("%w: nested Nullable in %s", ErrUnknownType, s)
		}
		return dt, true, nil
	}
	switch s {
	case "Int8":
		return arrow.PrimitiveTypes.Int8, false, nil
	case "Int16":
		return arrow.PrimitiveTypes.Int16, false, nil
	case "Int32":
		return arrow.PrimitiveTypes.Int32, false, nil
	case "Int64":
		return arrow.PrimitiveTypes.Int64, false, nil
	case "UInt8":
		return arrow.PrimitiveTypes.Uint8, false, nil
	case "UInt16":
		return arrow.PrimitiveTypes.Uint16, false, nil
	case "UInt32":
		return arrow.PrimitiveTypes.Uint32, false, nil
	case "UInt64":
		return arrow.PrimitiveTypes.Uint64, false, nil
	case "Float32":
		return arrow.PrimitiveTypes.Float32, false, nil
	case "Float64":
		return arrow.PrimitiveTypes.Float64, false, nil
	case "String":
		return arrow.BinaryTypes.String, false, nil
	case "Bool", "Boolean":
		return arrow.FixedWidthTypes.Boolean, false, nil
	case "Date", "Date32":
		return arrow.FixedWidthTypes.Date32, false, nil
	case "DateTime":
		return &arrow.TimestampType{Unit: arrow.Second, TimeZone: defaultTimeZone}, false, nil
	}
	if _, ok := typeArgs(s, "FixedString"); ok {
		return arrow.BinaryTypes.String, false, nil
	}
	if args, ok := typeArgs(s, "DateTime"); ok {
		return &arrow.TimestampType{Unit: arrow.Second, TimeZone: unquote(args)}, false, nil
	}
	if args, ok := typeArgs(s, "DateTime64"); ok {
		precision, tz, _ := strings.Cut(args, ",")
		p, err := strconv.Atoi(strings.TrimSpace(precision))
		if err != nil || p < 0 || p > 9 {
			return nil, false, fmt.Errorf("%w: bad precision in %s", ErrUnknownType, s)
		}
		tz = unquote(tz)
		if tz == "" {
			tz = defaultTimeZone
		}
		return &arrow.TimestampType{Unit: unitFromPrecision(p), TimeZone: tz}, false, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrUnknownType, s)
}

// TypeName renders the declaration of the column type.
func TypeName(dt arrow.DataType, nullable bool) string {
	name := typeName(dt)
	if nullable {
		return "Nullable(" + name + ")"
	}
	return name
}

func typeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.INT8:
		return "Int8"
	case arrow.INT16:
		return "Int16"
	case arrow.INT32:
		return "Int32"
	case arrow.INT64:
		return "Int64"
	case arrow.UINT8:
		return "UInt8"
	case arrow.UINT16:
		return "UInt16"
	case arrow.UINT32:
		return "UInt32"
	case arrow.UINT64:
		return "UInt64"
	case arrow.FLOAT32:
		return "Float32"
	case arrow.FLOAT64:
		return "Float64"
	case arrow.STRING, arrow.LARGE_STRING:
		return "String"
	case arrow.BOOL:
		return "Bool"
	case arrow.DATE32:
		return "Date"
	case arrow.TIMESTAMP:
		ts := dt.(*arrow.TimestampType)
		if ts.Unit == arrow.Second {
			if ts.TimeZone == "" || ts.TimeZone == defaultTimeZone {
				return "DateTime"
			}
			return fmt.Sprintf("DateTime('%s')", ts.TimeZone)
		}
		if ts.TimeZone == "" || ts.TimeZone == defaultTimeZone {
			return fmt.Sprintf("DateTime64(%d)", precisionFromUnit(ts.Unit))
		}
		return fmt.Sprintf("DateTime64(%d, '%s')", precisionFromUnit(ts.Unit), ts.TimeZone)
	}
	return dt.String()
}

func typeArgs(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return strings.TrimSpace(s[len(name)+1 : len(s)-1]), true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `'"`)
}

func unitFromPrecision(p int) arrow.TimeUnit {
	switch {
	case p == 0:
		return arrow.Second
	case p <= 3:
		return arrow.Millisecond
	case p <= 6:
		return arrow.Microsecond
	default:
		return arrow.Nanosecond
	}
}

func precisionFromUnit(u arrow.TimeUnit) int {
	switch u {
	case arrow.Millisecond:
		return 3
	case arrow.Microsecond:
		return 6
	case arrow.Nanosecond:
		return 9
	}
	return 0
}
