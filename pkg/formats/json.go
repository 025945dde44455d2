package formats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"

	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

const jsonEachRow = "JSONEachRow"

type jsonEachRowInput struct {
	header   *arrow.Schema
	settings Settings
	dec      *json.Decoder
	rb       *rowBuilder
	index    map[string]int
	row      int
	eof      bool
}

func newJSONEachRowInput(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	index := make(map[string]int, header.NumFields())
	for i, f := range header.Fields() {
		index[f.Name] = i
	}
	return &jsonEachRowInput{
		header:   header,
		settings: s,
		dec:      dec,
		rb:       newRowBuilder(s.Allocator, header),
		index:    index,
	}, nil
}

func (in *jsonEachRowInput) Name() string                     { return jsonEachRow }
func (in *jsonEachRowInput) Header() *arrow.Schema            { return in.header }
func (in *jsonEachRowInput) ReadPrefix(context.Context) error { return nil }
func (in *jsonEachRowInput) ReadSuffix(context.Context) error { return nil }

func (in *jsonEachRowInput) Read(ctx context.Context) (streams.Block, error) {
	if in.eof {
		return streams.Block{}, io.EOF
	}
	for in.rb.rows < in.settings.MaxBlockSize {
		var obj map[string]any
		err := in.dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			in.eof = true
			break
		}
		in.row++
		if err != nil {
			return streams.Block{}, &ParseError{Format: jsonEachRow, Row: in.row, Err: err}
		}
		if obj == nil {
			return streams.Block{}, &ParseError{Format: jsonEachRow, Row: in.row, Err: errors.New("expected JSON object")}
		}
		if err := in.appendObject(obj); err != nil {
			return streams.Block{}, &ParseError{Format: jsonEachRow, Row: in.row, Err: err}
		}
	}
	if in.rb.rows == 0 {
		return streams.Block{}, io.EOF
	}
	return in.rb.flush(), nil
}

func (in *jsonEachRowInput) appendObject(obj map[string]any) error {
	if !in.settings.SkipUnknownFields {
		for k := range obj {
			if _, ok := in.index[k]; !ok && !in.settings.known(k) {
				return fmt.Errorf("unknown field %q", k)
			}
		}
	}
	for i, f := range in.header.Fields() {
		v, ok := obj[f.Name]
		if !ok || (v == nil && !f.Nullable) {
			in.rb.appendMissing(i)
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			v = string(b)
		}
		if err := in.rb.append(i, v); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	in.rb.commitRow()
	return nil
}

func (in *jsonEachRowInput) Close() error {
	in.rb.release()
	return nil
}

type jsonEachRowOutput struct {
	w      io.Writer
	header *arrow.Schema
	keys   [][]byte
	buf    bytes.Buffer
}

func newJSONEachRowOutput(w io.Writer, header *arrow.Schema, _ Settings) (streams.BlockOutputStream, error) {
	keys := make([][]byte, header.NumFields())
	for i, f := range header.Fields() {
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return &jsonEachRowOutput{w: w, header: header, keys: keys}, nil
}

func (out *jsonEachRowOutput) Header() *arrow.Schema             { return out.header }
func (out *jsonEachRowOutput) WritePrefix(context.Context) error { return nil }
func (out *jsonEachRowOutput) WriteSuffix(context.Context) error { return nil }
func (out *jsonEachRowOutput) Flush() error                      { return nil }

func (out *jsonEachRowOutput) Write(ctx context.Context, rec arrow.RecordBatch) error {
	out.buf.Reset()
	for r := 0; r < int(rec.NumRows()); r++ {
		out.buf.WriteByte('{')
		for c := 0; c < int(rec.NumCols()); c++ {
			if c > 0 {
				out.buf.WriteByte(',')
			}
			out.buf.Write(out.keys[c])
			out.buf.WriteByte(':')
			b, err := json.Marshal(types.JSONValueAt(rec.Column(c), r))
			if err != nil {
				return fmt.Errorf("%s: column %s: %w", jsonEachRow, out.header.Field(c).Name, err)
			}
			out.buf.Write(b)
		}
		out.buf.WriteString("}\n")
	}
	_, err := out.w.Write(out.buf.Bytes())
	return err
}
