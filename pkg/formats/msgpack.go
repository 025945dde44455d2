package formats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

const msgPack = "MsgPack"

// msgPackInput reads a flat stream of values, the row values follow the header order.
type msgPackInput struct {
	header   *arrow.Schema
	settings Settings
	dec      *msgpack.Decoder
	rb       *rowBuilder
	row      int
	eof      bool
}

func newMsgPackInput(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	return &msgPackInput{
		header:   header,
		settings: s,
		dec:      msgpack.NewDecoder(bufio.NewReader(r)),
		rb:       newRowBuilder(s.Allocator, header),
	}, nil
}

func (in *msgPackInput) Name() string                     { return msgPack }
func (in *msgPackInput) Header() *arrow.Schema            { return in.header }
func (in *msgPackInput) ReadPrefix(context.Context) error { return nil }
func (in *msgPackInput) ReadSuffix(context.Context) error { return nil }

func (in *msgPackInput) Read(ctx context.Context) (streams.Block, error) {
	if in.eof {
		return streams.Block{}, io.EOF
	}
	for in.rb.rows < in.settings.MaxBlockSize {
		ok, err := in.readRow()
		if err != nil {
			return streams.Block{}, &ParseError{Format: msgPack, Row: in.row, Err: err}
		}
		if !ok {
			in.eof = true
			break
		}
	}
	if in.rb.rows == 0 {
		return streams.Block{}, io.EOF
	}
	return in.rb.flush(), nil
}

func (in *msgPackInput) readRow() (bool, error) {
	for i, f := range in.header.Fields() {
		v, err := in.dec.DecodeInterfaceLoose()
		if errors.Is(err, io.EOF) && i == 0 {
			return false, nil
		}
		if i == 0 {
			in.row++
		}
		if errors.Is(err, io.EOF) {
			return false, io.ErrUnexpectedEOF
		}
		if err != nil {
			return false, err
		}
		if v == nil && !f.Nullable {
			in.rb.appendMissing(i)
			continue
		}
		if err := in.rb.append(i, v); err != nil {
			return false, fmt.Errorf("column %s: %w", f.Name, err)
		}
	}
	in.rb.commitRow()
	return true, nil
}

func (in *msgPackInput) Close() error {
	in.rb.release()
	return nil
}

type msgPackOutput struct {
	header *arrow.Schema
	enc    *msgpack.Encoder
}

func newMsgPackOutput(w io.Writer, header *arrow.Schema, _ Settings) (streams.BlockOutputStream, error) {
	return &msgPackOutput{header: header, enc: msgpack.NewEncoder(w)}, nil
}

func (out *msgPackOutput) Header() *arrow.Schema             { return out.header }
func (out *msgPackOutput) WritePrefix(context.Context) error { return nil }
func (out *msgPackOutput) WriteSuffix(context.Context) error { return nil }
func (out *msgPackOutput) Flush() error                      { return nil }

func (out *msgPackOutput) Write(ctx context.Context, rec arrow.RecordBatch) error {
	for r := 0; r < int(rec.NumRows()); r++ {
		for c := 0; c < int(rec.NumCols()); c++ {
			if err := out.enc.Encode(types.ValueAt(rec.Column(c), r)); err != nil {
				return fmt.Errorf("%s: column %s: %w", msgPack, out.header.Field(c).Name, err)
			}
		}
	}
	return nil
}
