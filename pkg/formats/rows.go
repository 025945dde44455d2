package formats

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

// rowBuilder accumulates decoded rows into a block of the header schema.
type rowBuilder struct {
	b       *array.RecordBuilder
	header  *arrow.Schema
	missing streams.MissingValues
	rows    int
}

func newRowBuilder(mem memory.Allocator, header *arrow.Schema) *rowBuilder {
	return &rowBuilder{
		b:       array.NewRecordBuilder(mem, header),
		header:  header,
		missing: streams.MissingValues{},
	}
}

func (rb *rowBuilder) append(col int, v any) error {
	return types.AppendValue(rb.b.Field(col), v)
}

// appendMissing appends the placeholder of the cell absent in the input:
// NULL for nullable columns, the zero value otherwise.
func (rb *rowBuilder) appendMissing(col int) {
	if rb.header.Field(col).Nullable {
		rb.b.Field(col).AppendNull()
	} else {
		rb.b.Field(col).AppendEmptyValue()
	}
	rb.missing.Set(col, rb.rows)
}

func (rb *rowBuilder) commitRow() {
	rb.rows++
}

func (rb *rowBuilder) flush() streams.Block {
	block := streams.Block{
		Record:  rb.b.NewRecord(),
		Missing: rb.missing,
	}
	rb.missing = streams.MissingValues{}
	rb.rows = 0
	return block
}

func (rb *rowBuilder) release() {
	rb.b.Release()
}

// mapByName returns for each header column the index of the source column of the same name, or -1.
func mapByName(header, src *arrow.Schema) []int {
	mapping := make([]int, header.NumFields())
	for i, f := range header.Fields() {
		mapping[i] = -1
		if idx := src.FieldIndices(f.Name); len(idx) > 0 {
			mapping[i] = idx[0]
		}
	}
	return mapping
}

// projectRecord rearranges the source record to the header schema.
// Absent columns and NULLs of non-nullable columns become missing cells.
func projectRecord(mem memory.Allocator, header *arrow.Schema, src arrow.RecordBatch, mapping []int) (streams.Block, error) {
	n := int(src.NumRows())
	missing := streams.MissingValues{}
	cols := make([]arrow.Array, header.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, f := range header.Fields() {
		j := mapping[i]
		if j < 0 {
			cols[i] = absentColumn(mem, f, n)
			missing.SetColumn(i, n)
			continue
		}
		col := src.Column(j)
		if arrow.TypeEqual(f.Type, col.DataType()) && (f.Nullable || col.NullN() == 0) {
			col.Retain()
			cols[i] = col
			continue
		}
		c, err := convertColumn(mem, f, col, i, missing)
		if err != nil {
			return streams.Block{}, fmt.Errorf("column %s: %w", f.Name, err)
		}
		cols[i] = c
	}
	return streams.Block{
		Record:  array.NewRecord(header, cols, int64(n)),
		Missing: missing,
	}, nil
}

func absentColumn(mem memory.Allocator, f arrow.Field, n int) arrow.Array {
	b := array.NewBuilder(mem, f.Type)
	defer b.Release()
	if f.Nullable {
		b.AppendNulls(n)
	} else {
		b.AppendEmptyValues(n)
	}
	return b.NewArray()
}

func convertColumn(mem memory.Allocator, f arrow.Field, col arrow.Array, idx int, missing streams.MissingValues) (arrow.Array, error) {
	b := array.NewBuilder(mem, f.Type)
	defer b.Release()
	b.Reserve(col.Len())
	for r := 0; r < col.Len(); r++ {
		if col.IsNull(r) && !f.Nullable {
			b.AppendEmptyValue()
			missing.Set(idx, r)
			continue
		}
		if err := types.CopyValue(b, col, r); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}
