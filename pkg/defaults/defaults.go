// Package defaults fills the cells absent in the source with the column default expressions.
package defaults

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/url-engine/pkg/expr"
	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

type options struct {
	header *arrow.Schema
	mem    memory.Allocator
}

type Option func(*options)

// WithHeader sets the output header, columns absent in the input header are missing in every row.
func WithHeader(header *arrow.Schema) Option {
	return func(o *options) {
		o.header = header
	}
}

func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) {
		o.mem = mem
	}
}

type addingDefaults struct {
	in       streams.BlockInputStream
	header   *arrow.Schema
	mapping  []int
	extra    []int
	identity bool
	defaults types.ColumnDefaults
	ev       *expr.Evaluator
	mem      memory.Allocator
}

// AddingDefaults wraps the input stream, blocks without missing cells pass through untouched.
func AddingDefaults(in streams.BlockInputStream, defaults types.ColumnDefaults, ev *expr.Evaluator, opts ...Option) streams.BlockInputStream {
	o := options{
		header: in.Header(),
		mem:    memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(&o)
	}
	src := in.Header()
	mapping := make([]int, o.header.NumFields())
	identity := o.header.NumFields() == src.NumFields()
	for i, f := range o.header.Fields() {
		mapping[i] = -1
		if idx := src.FieldIndices(f.Name); len(idx) > 0 {
			mapping[i] = idx[0]
		}
		if mapping[i] != i {
			identity = false
		}
	}
	var extra []int
	for j, f := range src.Fields() {
		if len(o.header.FieldIndices(f.Name)) == 0 {
			extra = append(extra, j)
		}
	}
	return &addingDefaults{
		in:       in,
		header:   o.header,
		mapping:  mapping,
		extra:    extra,
		identity: identity,
		defaults: defaults,
		ev:       ev,
		mem:      o.mem,
	}
}

func (s *addingDefaults) Name() string          { return s.in.Name() }
func (s *addingDefaults) Header() *arrow.Schema { return s.header }

func (s *addingDefaults) ReadPrefix(ctx context.Context) error {
	return s.in.ReadPrefix(ctx)
}

func (s *addingDefaults) ReadSuffix(ctx context.Context) error {
	return s.in.ReadSuffix(ctx)
}

func (s *addingDefaults) Close() error {
	return s.in.Close()
}

func (s *addingDefaults) Read(ctx context.Context) (streams.Block, error) {
	b, err := s.in.Read(ctx)
	if err != nil {
		return b, err
	}
	if s.identity && b.Missing.Empty() {
		return b, nil
	}
	defer b.Release()
	return s.fill(ctx, b)
}

func (s *addingDefaults) fill(ctx context.Context, b streams.Block) (streams.Block, error) {
	n := int(b.Record.NumRows())
	fields := s.header.Fields()
	cols := make([]arrow.Array, len(fields))
	owned := make([]bool, len(fields))
	missing := streams.MissingValues{}
	defer func() {
		for i, c := range cols {
			if owned[i] && c != nil {
				c.Release()
			}
		}
	}()

	for i := range fields {
		j := s.mapping[i]
		if j < 0 {
			missing.SetColumn(i, n)
			continue
		}
		cols[i] = b.Record.Column(j)
		if mask := b.Missing.Column(j); hasMissing(mask) {
			missing[i] = mask
		}
	}

	for i, f := range fields {
		if !hasMissing(missing.Column(i)) {
			continue
		}
		d, ok := s.defaults[f.Name]
		if !ok || d.Expression == "" {
			if cols[i] == nil {
				cols[i], owned[i] = placeholder(s.mem, f, n), true
			}
			continue
		}
		arr, err := s.fillColumn(ctx, i, d.Expression, b, cols, missing)
		if err != nil {
			return streams.Block{}, fmt.Errorf("default of column %s: %w", f.Name, err)
		}
		if owned[i] {
			cols[i].Release()
		}
		cols[i], owned[i] = arr, true
		delete(missing, i)
	}

	return streams.Block{
		Record:  array.NewRecord(s.header, cols, int64(n)),
		Missing: missing,
	}, nil
}

func (s *addingDefaults) fillColumn(ctx context.Context, col int, expression string, src streams.Block, cols []arrow.Array, missing streams.MissingValues) (arrow.Array, error) {
	n := int(src.Record.NumRows())
	f := s.header.Field(col)
	b := array.NewBuilder(s.mem, f.Type)
	defer b.Release()
	b.Reserve(n)
	for r := 0; r < n; r++ {
		if !missing.Has(col, r) {
			if err := types.CopyValue(b, cols[col], r); err != nil {
				return nil, err
			}
			continue
		}
		v, err := s.ev.Eval(ctx, expression, s.row(src, cols, missing, r))
		if err != nil {
			return nil, err
		}
		if v == nil {
			if f.Nullable {
				b.AppendNull()
			} else {
				b.AppendEmptyValue()
			}
			continue
		}
		if err := types.AppendValue(b, v); err != nil {
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
	}
	return b.NewArray(), nil
}

// row is the object of the row values known so far,
// source columns that are not in the output are visible to the expressions too.
func (s *addingDefaults) row(src streams.Block, cols []arrow.Array, missing streams.MissingValues, r int) map[string]any {
	row := make(map[string]any, len(cols)+len(s.extra))
	for _, j := range s.extra {
		if src.Missing.Has(j, r) {
			continue
		}
		row[src.Record.Schema().Field(j).Name] = types.ValueAt(src.Record.Column(j), r)
	}
	for c, f := range s.header.Fields() {
		if cols[c] == nil || missing.Has(c, r) {
			continue
		}
		row[f.Name] = types.ValueAt(cols[c], r)
	}
	return row
}

func placeholder(mem memory.Allocator, f arrow.Field, n int) arrow.Array {
	b := array.NewBuilder(mem, f.Type)
	defer b.Release()
	if f.Nullable {
		b.AppendNulls(n)
	} else {
		b.AppendEmptyValues(n)
	}
	return b.NewArray()
}

func hasMissing(mask []bool) bool {
	for _, m := range mask {
		if m {
			return true
		}
	}
	return false
}
