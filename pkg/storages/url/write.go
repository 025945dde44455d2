package url

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/compression"
	"github.com/hugr-lab/url-engine/pkg/constraints"
	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/transport"
)

// Write opens the upload of the rows of all stored columns.
// The table context is used for the upload, the query context only gives the query id.
func (s *Storage) Write(ctx context.Context, q storages.QueryInfo, ec *storages.ExecutionContext) (storages.RowSink, error) {
	id := s.ID()
	queryID := q.QueryID
	if queryID == "" && ec != nil {
		queryID = ec.QueryID
	}
	wec := s.global.ForQuery(queryID)
	header := s.columns.Physical().ArrowSchema()
	method := compression.Choose(s.uri.Path, s.compression)

	client, err := s.client(wec)
	if err != nil {
		return nil, err
	}
	wb, err := client.OpenWrite(ctx, s.uri, http.MethodPost, queryHeaders(wec.QueryID))
	if err != nil {
		return nil, err
	}
	compressed, err := compression.NewWriter(method, wb, wec.Settings.CompressionLevel)
	if err != nil {
		wb.Cancel(err)
		return nil, err
	}
	buf := bufio.NewWriterSize(compressed, bufferSize(wec))
	out, err := wec.FormatFactory().Output(s.format, buf, header, wec.FormatSettings(0))
	if err != nil {
		wb.Cancel(err)
		_ = compressed.Close()
		return nil, err
	}
	log.Debug().
		Str("table", id.String()).
		Str("url", s.uri.Redacted()).
		Str("format", s.format).
		Str("compression", string(method)).
		Str("query_id", wec.QueryID).
		Msg("url write opened")

	sink := &outputSink{
		name:       fmt.Sprintf("%s(%s)", s.engine, id),
		header:     header,
		out:        out,
		buf:        buf,
		compressed: compressed,
		upload:     wb,
	}
	return constraints.CheckConstraints(sink, s.constraints, wec.Evaluator), nil
}

func bufferSize(ec *storages.ExecutionContext) int {
	if ec.Settings.BufferSize > 0 {
		return ec.Settings.BufferSize
	}
	return transport.DefaultBufferSize
}

// outputSink encodes the records into the upload body.
// Layers: codec -> buffer -> compressor -> upload.
type outputSink struct {
	name       string
	header     *arrow.Schema
	out        streams.BlockOutputStream
	buf        *bufio.Writer
	compressed io.WriteCloser
	upload     *transport.WriteBuffer

	prefixed         bool
	compressorClosed bool
	done             bool
	err              error
}

func (s *outputSink) Header() *arrow.Schema {
	return s.header
}

func (s *outputSink) Write(ctx context.Context, rec arrow.RecordBatch) error {
	if s.done {
		return s.closedErr()
	}
	if err := streams.CheckSchema(s.header, rec.Schema()); err != nil {
		return s.abort(fmt.Errorf("%w: %v", storages.ErrSchemaMismatch, err))
	}
	if err := s.writePrefix(ctx); err != nil {
		return s.abort(err)
	}
	// the codec expects the exact header schema
	r := array.NewRecord(s.header, rec.Columns(), rec.NumRows())
	defer r.Release()
	if err := s.out.Write(ctx, r); err != nil {
		return s.abort(err)
	}
	return nil
}

func (s *outputSink) writePrefix(ctx context.Context) error {
	if s.prefixed {
		return nil
	}
	s.prefixed = true
	return s.out.WritePrefix(ctx)
}

// Finish writes the codec trailer, flushes every layer and completes the upload.
func (s *outputSink) Finish(ctx context.Context) error {
	if s.done {
		return s.closedErr()
	}
	steps := []func() error{
		func() error { return s.writePrefix(ctx) },
		func() error { return s.out.WriteSuffix(ctx) },
		s.out.Flush,
		s.buf.Flush,
		s.closeCompressor,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return s.abort(err)
		}
	}
	s.done = true
	if err := s.upload.Finalize(); err != nil {
		s.err = err
		return err
	}
	log.Debug().Str("sink", s.name).Msg("url write finished")
	return nil
}

// Close aborts the upload unless it is finished.
func (s *outputSink) Close() error {
	if s.done {
		return nil
	}
	_ = s.abort(storages.ErrSinkClosed)
	return nil
}

func (s *outputSink) abort(err error) error {
	s.done = true
	s.err = err
	s.upload.Cancel(err)
	// the compressor writes into the canceled upload, its error is expected
	_ = s.closeCompressor()
	log.Debug().Err(err).Str("sink", s.name).Msg("url write aborted")
	return err
}

func (s *outputSink) closeCompressor() error {
	if s.compressorClosed {
		return nil
	}
	s.compressorClosed = true
	return s.compressed.Close()
}

func (s *outputSink) closedErr() error {
	if s.err != nil {
		return s.err
	}
	return storages.ErrSinkClosed
}

var (
	_ storages.RowSink = (*outputSink)(nil)
	_ storages.Storage = (*Storage)(nil)
)
