package types

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     arrow.DataType
		nullable bool
		wantErr  bool
	}{
		{name: "int64", input: "Int64", want: arrow.PrimitiveTypes.Int64},
		{name: "uint8", input: "UInt8", want: arrow.PrimitiveTypes.Uint8},
		{name: "float", input: "Float32", want: arrow.PrimitiveTypes.Float32},
		{name: "string", input: "String", want: arrow.BinaryTypes.String},
		{name: "fixed string", input: "FixedString(16)", want: arrow.BinaryTypes.String},
		{name: "bool alias", input: "Boolean", want: arrow.FixedWidthTypes.Boolean},
		{name: "date", input: "Date", want: arrow.FixedWidthTypes.Date32},
		{name: "datetime", input: "DateTime", want: &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}},
		{name: "datetime with zone", input: "DateTime('Europe/Berlin')", want: &arrow.TimestampType{Unit: arrow.Second, TimeZone: "Europe/Berlin"}},
		{name: "datetime64 ms", input: "DateTime64(3)", want: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}},
		{name: "datetime64 us", input: "DateTime64(5, 'Asia/Tokyo')", want: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "Asia/Tokyo"}},
		{name: "nullable", input: " Nullable(Int32) ", want: arrow.PrimitiveTypes.Int32, nullable: true},
		{name: "nested nullable", input: "Nullable(Nullable(Int32))", wantErr: true},
		{name: "bad precision", input: "DateTime64(12)", wantErr: true},
		{name: "unknown", input: "Decimal(10, 2)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, nullable, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownType) {
					t.Errorf("expected ErrUnknownType, got %v", err)
				}
				return
			}
			if !arrow.TypeEqual(got, tt.want) {
				t.Errorf("ParseType() = %v, want %v", got, tt.want)
			}
			if nullable != tt.nullable {
				t.Errorf("ParseType() nullable = %v, want %v", nullable, tt.nullable)
			}
		})
	}
}

func TestTypeNameRoundTrip(t *testing.T) {
	for _, s := range []string{
		"Int8", "Int64", "UInt32", "Float64", "String", "Bool", "Date",
		"DateTime", "DateTime('Europe/Berlin')", "DateTime64(3)", "DateTime64(9, 'Asia/Tokyo')",
		"Nullable(UInt16)",
	} {
		dt, nullable, err := ParseType(s)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", s, err)
		}
		if got := TypeName(dt, nullable); got != s {
			t.Errorf("TypeName(ParseType(%q)) = %q", s, got)
		}
	}
}
