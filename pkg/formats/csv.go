package formats

import (
	"bufio"
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/url-engine/pkg/streams"
)

func csvInputCreator(name string, comma rune, withNames bool) InputCreator {
	return func(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
		c := comma
		if c == 0 {
			c = s.CSVDelimiter
		}
		return &csvInput{
			name:      name,
			src:       r,
			header:    header,
			settings:  s,
			comma:     c,
			withNames: withNames,
		}, nil
	}
}

type csvInput struct {
	name      string
	src       io.Reader
	header    *arrow.Schema
	settings  Settings
	comma     rune
	withNames bool

	r       *csv.Reader
	mapping []int
	rows    int
	empty   bool
	failed  error
}

func (in *csvInput) Name() string          { return in.name }
func (in *csvInput) Header() *arrow.Schema { return in.header }

func (in *csvInput) ReadPrefix(ctx context.Context) error {
	src := in.src
	fileSchema := nullableSchema(in.header)
	in.mapping = make([]int, in.header.NumFields())
	for i := range in.mapping {
		in.mapping[i] = i
	}
	if in.withNames {
		br := bufio.NewReader(src)
		names, err := readCSVHeader(br, in.comma)
		if errors.Is(err, io.EOF) {
			in.empty = true
			return nil
		}
		if err != nil {
			return &ParseError{Format: in.name, Row: 1, Err: err}
		}
		fileSchema, err = in.fileSchema(names)
		if err != nil {
			return &ParseError{Format: in.name, Row: 1, Err: err}
		}
		in.mapping = mapByName(in.header, fileSchema)
		src = br
	}
	in.r = csv.NewReader(src, fileSchema,
		csv.WithComma(in.comma),
		csv.WithHeader(false),
		csv.WithChunk(in.settings.MaxBlockSize),
		csv.WithNullReader(true, in.settings.NullString),
		csv.WithAllocator(in.settings.Allocator),
	)
	return nil
}

// fileSchema types the file columns by the header, unrequested columns are read as strings.
func (in *csvInput) fileSchema(names []string) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		if idx := in.header.FieldIndices(name); len(idx) > 0 {
			fields[i] = in.header.Field(idx[0])
			fields[i].Nullable = true
			continue
		}
		if !in.settings.SkipUnknownFields && !in.settings.known(name) {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func (in *csvInput) Read(ctx context.Context) (b streams.Block, err error) {
	if in.failed != nil {
		return streams.Block{}, in.failed
	}
	if in.empty {
		return streams.Block{}, io.EOF
	}
	if in.r == nil {
		return streams.Block{}, errors.New("csv: read before prefix")
	}
	// the arrow reader panics on a row with a wrong number of fields
	defer func() {
		if p := recover(); p != nil {
			in.failed = &ParseError{Format: in.name, Row: in.dataRow(1), Err: fmt.Errorf("%w: %v", csv.ErrMismatchFields, p)}
			b, err = streams.Block{}, in.failed
		}
	}()
	if !in.r.Next() {
		if err := in.r.Err(); err != nil {
			return streams.Block{}, &ParseError{Format: in.name, Row: in.dataRow(1), Err: err}
		}
		return streams.Block{}, io.EOF
	}
	if err := in.r.Err(); err != nil {
		return streams.Block{}, &ParseError{Format: in.name, Row: in.dataRow(1), Err: err}
	}
	rec := in.r.Record()
	in.rows += int(rec.NumRows())
	b, err := projectRecord(in.settings.Allocator, in.header, rec, in.mapping)
	if err != nil {
		return streams.Block{}, &ParseError{Format: in.name, Err: err}
	}
	return b, nil
}

func (in *csvInput) dataRow(offset int) int {
	row := in.rows + offset
	if in.withNames {
		row++
	}
	return row
}

func (in *csvInput) ReadSuffix(context.Context) error { return nil }

func (in *csvInput) Close() error {
	if in.r != nil {
		in.r.Release()
		in.r = nil
	}
	return nil
}

func readCSVHeader(br *bufio.Reader, comma rune) ([]string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if strings.TrimSpace(line) == "" {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.New("missing header line")
	}
	cr := stdcsv.NewReader(strings.NewReader(line))
	cr.Comma = comma
	cr.LazyQuotes = true
	return cr.Read()
}

func nullableSchema(s *arrow.Schema) *arrow.Schema {
	fields := s.Fields()
	for i := range fields {
		fields[i].Nullable = true
	}
	return arrow.NewSchema(fields, nil)
}

func csvOutputCreator(comma rune, withNames bool) OutputCreator {
	return func(w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error) {
		c := comma
		if c == 0 {
			c = s.CSVDelimiter
		}
		return &csvOutput{
			header:    header,
			mem:       s.Allocator,
			withNames: withNames,
			w: csv.NewWriter(w, header,
				csv.WithComma(comma),
				csv.WithHeader(withNames),
				csv.WithNullWriter(s.NullString),
			),
		}, nil
	}
}

type csvOutput struct {
	header    *arrow.Schema
	mem       memory.Allocator
	withNames bool
	w         *csv.Writer
	wrote     bool
}

func (out *csvOutput) Header() *arrow.Schema             { return out.header }
func (out *csvOutput) WritePrefix(context.Context) error { return nil }

// WriteSuffix emits the names line for the empty output.
func (out *csvOutput) WriteSuffix(ctx context.Context) error {
	if out.wrote || !out.withNames {
		return nil
	}
	b := array.NewRecordBuilder(out.mem, out.header)
	defer b.Release()
	rec := b.NewRecord()
	defer rec.Release()
	return out.Write(ctx, rec)
}

func (out *csvOutput) Write(ctx context.Context, rec arrow.RecordBatch) error {
	out.wrote = true
	return out.w.Write(rec)
}

func (out *csvOutput) Flush() error {
	if err := out.w.Flush(); err != nil {
		return err
	}
	return out.w.Error()
}
