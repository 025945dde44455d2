package types

import (
	"errors"
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
)

func testColumns() Columns {
	return Columns{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Default: &ColumnDefault{Kind: DefaultKindDefault, Expression: "0"}},
		{Name: "label", Type: arrow.BinaryTypes.String, Default: &ColumnDefault{Kind: DefaultKindAlias, Expression: `.name + "!"`}},
	}
}

func TestColumnsProject(t *testing.T) {
	cc := testColumns()

	got, err := cc.Project([]string{"score", "id"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Names(), []string{"score", "id"}) {
		t.Errorf("unexpected projection order: %v", got.Names())
	}

	all, err := cc.Project(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(cc) {
		t.Errorf("empty projection must return all columns, got %d", len(all))
	}

	_, err = cc.Project([]string{"missing"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestColumnsPhysicalAndDefaults(t *testing.T) {
	cc := testColumns()

	if got := cc.Physical().Names(); !reflect.DeepEqual(got, []string{"id", "name", "score"}) {
		t.Errorf("Physical() = %v", got)
	}
	defaults := cc.Defaults()
	if len(defaults) != 2 {
		t.Fatalf("Defaults() = %v", defaults)
	}
	if defaults["score"].Expression != "0" {
		t.Errorf("unexpected score default: %+v", defaults["score"])
	}
	if cc[:2].Defaults() != nil {
		t.Errorf("columns without defaults must return nil")
	}
}

func TestColumnsValidate(t *testing.T) {
	if err := testColumns().Validate(); err != nil {
		t.Fatal(err)
	}
	dup := append(testColumns(), Column{Name: "id", Type: arrow.PrimitiveTypes.Int32})
	if err := dup.Validate(); !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("expected ErrDuplicateColumn, got %v", err)
	}
	if err := (Columns{}).Validate(); err == nil {
		t.Errorf("expected error for empty columns")
	}
	if err := (Columns{{Name: "x"}}).Validate(); err == nil {
		t.Errorf("expected error for column without type")
	}
}

func TestColumnsArrowSchema(t *testing.T) {
	s := testColumns().ArrowSchema()
	if s.NumFields() != 4 {
		t.Fatalf("unexpected fields: %v", s)
	}
	if !s.Field(1).Nullable || s.Field(0).Nullable {
		t.Errorf("nullability not preserved: %v", s)
	}
}

func TestParseTableID(t *testing.T) {
	tests := []struct {
		in   string
		want TableID
	}{
		{in: "db.t", want: TableID{Catalog: "db", Name: "t"}},
		{in: "t", want: TableID{Catalog: "default", Name: "t"}},
	}
	for _, tt := range tests {
		if got := ParseTableID(tt.in, "default"); got != tt.want {
			t.Errorf("ParseTableID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if s := (TableID{Catalog: "db", Name: "t"}).String(); s != "db.t" {
		t.Errorf("String() = %q", s)
	}
}
