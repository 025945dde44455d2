package url

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/compression"
	"github.com/hugr-lab/url-engine/pkg/defaults"
	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

// Read opens the resource and returns the records of the requested columns.
// Alias columns and the cells absent in the resource are computed by the column defaults.
func (s *Storage) Read(ctx context.Context, columns []string, q storages.QueryInfo, ec *storages.ExecutionContext, maxBlockSize int) (*streams.RowSequence, error) {
	id := s.ID()
	if ec == nil {
		ec = s.global.ForQuery(q.QueryID)
	}
	if ec.Evaluator == nil {
		c := *ec
		c.Evaluator = s.global.Evaluator
		ec = &c
	}
	projected, err := s.columns.Project(columns)
	if err != nil {
		return nil, err
	}
	// positional codecs decode the whole row, the projection is applied afterwards
	physical := s.columns.Physical()
	header := physical.ArrowSchema()

	req := ReadRequest{
		Columns:      projected.Names(),
		Query:        q,
		Context:      ec,
		MaxBlockSize: maxBlockSize,
	}
	u := withParams(s.uri, s.hooks.ReadURIParams(req))
	method := compression.Choose(u.Path, s.compression)

	client, err := s.client(ec)
	if err != nil {
		return nil, err
	}
	body, err := client.OpenRead(ctx, u, s.hooks.ReadMethod(), queryHeaders(ec.QueryID), s.hooks.ReadBody(req))
	if err != nil {
		return nil, err
	}
	in := &inputStream{
		name: fmt.Sprintf("%s(%s)", s.engine, id),
		body: body,
	}
	in.decompressed, err = compression.NewReader(method, body)
	if err != nil {
		in.Close()
		return nil, err
	}
	fs := ec.FormatSettings(maxBlockSize)
	fs.KnownFields = knownFields(s.columns, physical)
	in.reader, err = ec.FormatFactory().Input(s.format, in.decompressed, header, fs)
	if err != nil {
		in.Close()
		return nil, err
	}
	log.Debug().
		Str("table", id.String()).
		Str("url", u.Redacted()).
		Str("format", s.format).
		Str("compression", string(method)).
		Str("query_id", ec.QueryID).
		Msg("url read opened")

	var stream streams.BlockInputStream = in
	output := projected.ArrowSchema()
	if dd := s.columns.Defaults(); len(dd) != 0 || !header.Equal(output) {
		stream = defaults.AddingDefaults(stream, dd, ec.Evaluator,
			defaults.WithHeader(output),
			defaults.WithAllocator(fs.Allocator),
		)
	}
	return streams.NewRowSequence(ctx, stream), nil
}

// knownFields are the declared columns the codec is not asked for.
func knownFields(all, requested types.Columns) []string {
	var known []string
	for _, c := range all {
		if _, ok := requested.Get(c.Name); !ok {
			known = append(known, c.Name)
		}
	}
	return known
}

// inputStream owns the response body and the decompressor of the read.
type inputStream struct {
	name         string
	body         io.ReadCloser
	decompressed io.ReadCloser
	reader       streams.BlockInputStream

	once     sync.Once
	closeErr error
}

func (s *inputStream) Name() string { return s.name }

func (s *inputStream) Header() *arrow.Schema { return s.reader.Header() }

func (s *inputStream) ReadPrefix(ctx context.Context) error {
	return s.reader.ReadPrefix(ctx)
}

func (s *inputStream) Read(ctx context.Context) (streams.Block, error) {
	return s.reader.Read(ctx)
}

func (s *inputStream) ReadSuffix(ctx context.Context) error {
	return s.reader.ReadSuffix(ctx)
}

func (s *inputStream) Close() error {
	s.once.Do(func() {
		var errs []error
		if s.reader != nil {
			errs = append(errs, s.reader.Close())
		}
		if s.decompressed != nil {
			errs = append(errs, s.decompressed.Close())
		}
		s.closeErr = errors.Join(append(errs, s.body.Close())...)
		log.Debug().Str("stream", s.name).Msg("url read closed")
	})
	return s.closeErr
}
