package formats

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/hugr-lab/url-engine/pkg/streams"
)

const arrowStream = "ArrowStream"

type arrowStreamInput struct {
	src      io.Reader
	header   *arrow.Schema
	settings Settings

	r       *ipc.Reader
	mapping []int
	empty   bool
}

func newArrowStreamInput(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	return &arrowStreamInput{src: r, header: header, settings: s}, nil
}

func (in *arrowStreamInput) Name() string          { return arrowStream }
func (in *arrowStreamInput) Header() *arrow.Schema { return in.header }

func (in *arrowStreamInput) ReadPrefix(ctx context.Context) error {
	br := bufio.NewReader(in.src)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		in.empty = true
		return nil
	}
	r, err := ipc.NewReader(br, ipc.WithAllocator(in.settings.Allocator))
	if err != nil {
		return &ParseError{Format: arrowStream, Err: err}
	}
	in.r = r
	in.mapping = mapByName(in.header, r.Schema())
	return nil
}

func (in *arrowStreamInput) Read(ctx context.Context) (streams.Block, error) {
	if in.empty {
		return streams.Block{}, io.EOF
	}
	if in.r == nil {
		return streams.Block{}, errors.New("arrow: read before prefix")
	}
	if !in.r.Next() {
		if err := in.r.Err(); err != nil && !errors.Is(err, io.EOF) {
			return streams.Block{}, &ParseError{Format: arrowStream, Err: err}
		}
		return streams.Block{}, io.EOF
	}
	b, err := projectRecord(in.settings.Allocator, in.header, in.r.Record(), in.mapping)
	if err != nil {
		return streams.Block{}, &ParseError{Format: arrowStream, Err: err}
	}
	return b, nil
}

func (in *arrowStreamInput) ReadSuffix(context.Context) error { return nil }

func (in *arrowStreamInput) Close() error {
	if in.r != nil {
		in.r.Release()
		in.r = nil
	}
	return nil
}

type arrowStreamOutput struct {
	header *arrow.Schema
	w      *ipc.Writer
}

func newArrowStreamOutput(w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error) {
	return &arrowStreamOutput{
		header: header,
		w:      ipc.NewWriter(w, ipc.WithSchema(header), ipc.WithAllocator(s.Allocator)),
	}, nil
}

func (out *arrowStreamOutput) Header() *arrow.Schema             { return out.header }
func (out *arrowStreamOutput) WritePrefix(context.Context) error { return nil }
func (out *arrowStreamOutput) Flush() error                      { return nil }

func (out *arrowStreamOutput) Write(ctx context.Context, rec arrow.RecordBatch) error {
	return out.w.Write(rec)
}

// WriteSuffix writes the end of stream marker.
func (out *arrowStreamOutput) WriteSuffix(context.Context) error {
	return out.w.Close()
}
