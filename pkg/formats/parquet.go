package formats

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/hugr-lab/url-engine/pkg/streams"
)

const parquetFormat = "Parquet"

// parquetInput buffers the whole body: the footer is at the end of the file.
type parquetInput struct {
	src      io.Reader
	header   *arrow.Schema
	settings Settings

	pf      *file.Reader
	rr      pqarrow.RecordReader
	mapping []int
	empty   bool
}

func newParquetInput(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	return &parquetInput{src: r, header: header, settings: s}, nil
}

func (in *parquetInput) Name() string          { return parquetFormat }
func (in *parquetInput) Header() *arrow.Schema { return in.header }

func (in *parquetInput) ReadPrefix(ctx context.Context) error {
	data, err := io.ReadAll(in.src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		in.empty = true
		return nil
	}
	pf, err := file.NewParquetReader(bytes.NewReader(data),
		file.WithReadProps(parquet.NewReaderProperties(in.settings.Allocator)),
	)
	if err != nil {
		return &ParseError{Format: parquetFormat, Err: err}
	}
	in.pf = pf
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{
		BatchSize: int64(in.settings.MaxBlockSize),
	}, in.settings.Allocator)
	if err != nil {
		return &ParseError{Format: parquetFormat, Err: err}
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return &ParseError{Format: parquetFormat, Err: err}
	}
	in.rr = rr
	in.mapping = mapByName(in.header, rr.Schema())
	return nil
}

func (in *parquetInput) Read(ctx context.Context) (streams.Block, error) {
	if in.empty {
		return streams.Block{}, io.EOF
	}
	if in.rr == nil {
		return streams.Block{}, errors.New("parquet: read before prefix")
	}
	if !in.rr.Next() {
		if err := in.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
			return streams.Block{}, &ParseError{Format: parquetFormat, Err: err}
		}
		return streams.Block{}, io.EOF
	}
	b, err := projectRecord(in.settings.Allocator, in.header, in.rr.Record(), in.mapping)
	if err != nil {
		return streams.Block{}, &ParseError{Format: parquetFormat, Err: err}
	}
	return b, nil
}

func (in *parquetInput) ReadSuffix(context.Context) error { return nil }

func (in *parquetInput) Close() error {
	if in.rr != nil {
		in.rr.Release()
		in.rr = nil
	}
	if in.pf != nil {
		err := in.pf.Close()
		in.pf = nil
		return err
	}
	return nil
}

type parquetOutput struct {
	w        io.Writer
	header   *arrow.Schema
	settings Settings
	fw       *pqarrow.FileWriter
}

func newParquetOutput(w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error) {
	return &parquetOutput{w: w, header: header, settings: s}, nil
}

func (out *parquetOutput) Header() *arrow.Schema { return out.header }

func (out *parquetOutput) WritePrefix(context.Context) error {
	fw, err := pqarrow.NewFileWriter(out.header, writerOnly{out.w},
		parquet.NewWriterProperties(parquet.WithAllocator(out.settings.Allocator)),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return err
	}
	out.fw = fw
	return nil
}

func (out *parquetOutput) Write(ctx context.Context, rec arrow.RecordBatch) error {
	if out.fw == nil {
		if err := out.WritePrefix(ctx); err != nil {
			return err
		}
	}
	return out.fw.Write(rec)
}

// WriteSuffix writes the footer.
func (out *parquetOutput) WriteSuffix(ctx context.Context) error {
	if out.fw == nil {
		if err := out.WritePrefix(ctx); err != nil {
			return err
		}
	}
	return out.fw.Close()
}

func (out *parquetOutput) Flush() error { return nil }

// writerOnly hides Close of the destination from the parquet writer.
type writerOnly struct {
	io.Writer
}
