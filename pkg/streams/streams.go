// Package streams defines the block streams exchanged between codecs and storages.
package streams

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Block is a batch of rows with the mask of cells the source did not provide.
type Block struct {
	Record  arrow.RecordBatch
	Missing MissingValues
}

func (b Block) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// MissingValues marks per column the rows that were absent in the source.
// Columns without absent cells have no mask.
type MissingValues map[int][]bool

func (m MissingValues) Set(col, row int) {
	mask := m[col]
	if len(mask) <= row {
		mask = append(mask, make([]bool, row+1-len(mask))...)
	}
	mask[row] = true
	m[col] = mask
}

// SetColumn marks the whole column as absent.
func (m MissingValues) SetColumn(col, rows int) {
	mask := make([]bool, rows)
	for i := range mask {
		mask[i] = true
	}
	m[col] = mask
}

func (m MissingValues) Has(col, row int) bool {
	mask := m[col]
	return row < len(mask) && mask[row]
}

func (m MissingValues) Column(col int) []bool {
	return m[col]
}

func (m MissingValues) Empty() bool {
	return len(m) == 0
}

// BlockInputStream produces blocks of the header schema.
// Read returns io.EOF after the last block.
type BlockInputStream interface {
	Name() string
	Header() *arrow.Schema
	ReadPrefix(ctx context.Context) error
	Read(ctx context.Context) (Block, error)
	ReadSuffix(ctx context.Context) error
	Close() error
}

// BlockOutputStream consumes records of the header schema.
type BlockOutputStream interface {
	Header() *arrow.Schema
	WritePrefix(ctx context.Context) error
	Write(ctx context.Context, rec arrow.RecordBatch) error
	// WriteSuffix emits the codec trailer.
	WriteSuffix(ctx context.Context) error
	Flush() error
}

// CheckSchema returns the description of the first difference between the schemas.
// Nullability is not compared.
func CheckSchema(expected, got *arrow.Schema) error {
	if expected.NumFields() != got.NumFields() {
		return fmt.Errorf("expected %d columns, got %d", expected.NumFields(), got.NumFields())
	}
	for i, f := range expected.Fields() {
		g := got.Field(i)
		if f.Name != g.Name {
			return fmt.Errorf("column %d: expected %s, got %s", i+1, f.Name, g.Name)
		}
		if !arrow.TypeEqual(f.Type, g.Type) {
			return fmt.Errorf("column %s: expected type %s, got %s", f.Name, f.Type, g.Type)
		}
	}
	return nil
}
