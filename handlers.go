package urlengine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/catalog"
	"github.com/hugr-lab/url-engine/pkg/compression"
	"github.com/hugr-lab/url-engine/pkg/constraints"
	"github.com/hugr-lab/url-engine/pkg/defaults"
	"github.com/hugr-lab/url-engine/pkg/formats"
	"github.com/hugr-lab/url-engine/pkg/hostfilter"
	"github.com/hugr-lab/url-engine/pkg/storages"
	urlstorage "github.com/hugr-lab/url-engine/pkg/storages/url"
	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/transport"
	"github.com/hugr-lab/url-engine/pkg/types"
)

type ColumnInfo struct {
	Name    string               `json:"name"`
	Type    string               `json:"type"`
	Default *types.ColumnDefault `json:"default,omitempty"`
}

type TableInfo struct {
	Catalog     string             `json:"catalog"`
	Name        string             `json:"name"`
	Engine      string             `json:"engine"`
	URL         string             `json:"url,omitempty"`
	Format      string             `json:"format,omitempty"`
	Compression string             `json:"compression,omitempty"`
	Columns     []ColumnInfo       `json:"columns"`
	Constraints []types.Constraint `json:"constraints,omitempty"`
}

type remoteStorage interface {
	URL() *url.URL
	Format() string
	Compression() compression.Method
}

// Describe returns the table description.
func Describe(st storages.Storage) TableInfo {
	id := st.ID()
	info := TableInfo{
		Catalog:     id.Catalog,
		Name:        id.Name,
		Engine:      st.Engine(),
		Constraints: st.Constraints(),
	}
	if rs, ok := st.(remoteStorage); ok {
		info.URL = rs.URL().Redacted()
		info.Format = rs.Format()
		info.Compression = string(rs.Compression())
	}
	for _, c := range st.Columns() {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:    c.Name,
			Type:    types.TypeName(c.Type, c.Nullable),
			Default: c.Default,
		})
	}
	return info
}

func (s *Service) listHandler(w http.ResponseWriter, r *http.Request) {
	tables := s.catalog.List()
	out := make([]TableInfo, 0, len(tables))
	for _, st := range tables {
		out = append(out, Describe(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) createHandler(w http.ResponseWriter, r *http.Request) {
	var d catalog.Definition
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := s.catalog.Create(r.Context(), d)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, Describe(st))
}

func (s *Service) table(r *http.Request) (storages.Storage, error) {
	return s.catalog.Get(types.TableID{
		Catalog: r.PathValue("catalog"),
		Name:    r.PathValue("table"),
	})
}

// readHandler streams the table rows encoded with the requested format.
func (s *Service) readHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.table(r)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	params := r.URL.Query()
	format := params.Get("format")
	if format == "" {
		format = DefaultOutputFormat
	}
	var columns []string
	if c := params.Get("columns"); c != "" {
		columns = strings.Split(c, ",")
	}
	maxBlockSize, err := intParam(params.Get("max_block_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(params.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ec := s.catalog.Context().ForQuery(r.Header.Get(urlstorage.QueryIDHeader))
	q := storages.QueryInfo{
		QueryID: ec.QueryID,
		Filter:  params.Get("filter"),
		Limit:   limit,
	}

	seq, err := st.Read(r.Context(), columns, q, ec, maxBlockSize)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	defer seq.Close()
	out, err := ec.FormatFactory().Output(format, w, seq.Schema(), ec.FormatSettings(maxBlockSize))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	// the status is still open until the first block is decoded
	started := seq.Next()
	if !started {
		if err := seq.Err(); err != nil {
			writeError(w, statusOf(err), err)
			return
		}
	}
	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set(urlstorage.QueryIDHeader, ec.QueryID)
	if err := copyRows(r.Context(), seq, out, limit, started); err != nil {
		// the status is sent already
		log.Error().Err(err).Str("table", st.ID().String()).Str("query_id", ec.QueryID).Msg("read table")
	}
}

// CopyRows writes the sequence rows to the output stream, a positive limit cuts the rows.
func CopyRows(ctx context.Context, seq *streams.RowSequence, out streams.BlockOutputStream, limit int) error {
	return copyRows(ctx, seq, out, limit, false)
}

// copyRows starts from the current record of the sequence when started is set.
func copyRows(ctx context.Context, seq *streams.RowSequence, out streams.BlockOutputStream, limit int, started bool) error {
	if err := out.WritePrefix(ctx); err != nil {
		return err
	}
	rows := 0
	for started || seq.Next() {
		started = false
		rec := seq.Record()
		if limit > 0 && rows+int(rec.NumRows()) > limit {
			rec = rec.NewSlice(0, int64(limit-rows))
			defer rec.Release()
		}
		if err := out.Write(ctx, rec); err != nil {
			return err
		}
		rows += int(rec.NumRows())
		if limit > 0 && rows >= limit {
			break
		}
	}
	if err := seq.Err(); err != nil {
		return err
	}
	if err := out.WriteSuffix(ctx); err != nil {
		return err
	}
	return out.Flush()
}

// writeHandler decodes the request body with the format and writes the rows into the table.
func (s *Service) writeHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.table(r)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = DefaultOutputFormat
	}
	ec := s.catalog.Context().ForQuery(r.Header.Get(urlstorage.QueryIDHeader))

	body := io.ReadCloser(r.Body)
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		m, err := compression.Parse(ce)
		if err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err)
			return
		}
		body, err = compression.NewReader(m, r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		defer body.Close()
	}

	rows, err := WriteTable(r.Context(), st, ec, format, body)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "query_id": ec.QueryID})
}

// WriteTable decodes the rows from r with the format and writes them into the table.
// The missing values are filled with the column defaults, nothing is committed on error.
func WriteTable(ctx context.Context, st storages.Storage, ec *storages.ExecutionContext, format string, r io.Reader) (int, error) {
	sink, err := st.Write(ctx, storages.QueryInfo{QueryID: ec.QueryID}, ec)
	if err != nil {
		return 0, err
	}
	defer sink.Close()

	in, err := ec.FormatFactory().Input(format, r, sink.Header(), ec.FormatSettings(0))
	if err != nil {
		return 0, err
	}
	input := defaults.AddingDefaults(in, st.Columns().Defaults(), ec.Evaluator, defaults.WithAllocator(ec.Allocator))
	seq := streams.NewRowSequence(ctx, input)
	defer seq.Close()

	rows := 0
	for seq.Next() {
		rec := seq.Record()
		if err := sink.Write(ctx, rec); err != nil {
			return rows, err
		}
		rows += int(rec.NumRows())
	}
	if err := seq.Err(); err != nil {
		return rows, err
	}
	if err := sink.Finish(ctx); err != nil {
		return rows, err
	}
	return rows, nil
}

type renameRequest struct {
	Catalog string `json:"catalog"`
	Name    string `json:"name"`
}

func (s *Service) renameHandler(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from := types.TableID{Catalog: r.PathValue("catalog"), Name: r.PathValue("table")}
	to := types.TableID{Catalog: req.Catalog, Name: req.Name}
	if to.Catalog == "" {
		to.Catalog = from.Catalog
	}
	if to.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("new table name is required"))
		return
	}
	if err := s.catalog.Rename(from, to); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	st, err := s.catalog.Get(to)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(st))
}

func (s *Service) dropHandler(w http.ResponseWriter, r *http.Request) {
	id := types.TableID{Catalog: r.PathValue("catalog"), Name: r.PathValue("table")}
	if err := s.catalog.Drop(id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer parameter " + s)
	}
	return n, nil
}

func statusOf(err error) int {
	var (
		perr *formats.ParseError
		terr *transport.Error
	)
	switch {
	case errors.Is(err, catalog.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrTableExists):
		return http.StatusConflict
	case errors.Is(err, hostfilter.ErrUnacceptableURL):
		return http.StatusForbidden
	case errors.As(err, &perr),
		errors.Is(err, formats.ErrUnknownFormat),
		errors.Is(err, types.ErrUnknownColumn),
		errors.Is(err, types.ErrUnknownType),
		errors.Is(err, compression.ErrUnknownMethod),
		errors.Is(err, storages.ErrSchemaMismatch),
		errors.Is(err, storages.ErrNumberOfArgumentsDoesntMatch),
		errors.Is(err, storages.ErrUnknownEngine),
		errors.Is(err, constraints.ErrConstraintViolation):
		return http.StatusBadRequest
	case errors.As(err, &terr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func contentType(format string) string {
	switch format {
	case "JSONEachRow":
		return "application/x-ndjson"
	case "CSV", "CSVWithNames":
		return "text/csv"
	case "TSV", "TabSeparated", "TSVWithNames", "TabSeparatedWithNames":
		return "text/tab-separated-values"
	case "ArrowStream":
		return "application/vnd.apache.arrow.stream"
	case "Parquet":
		return "application/vnd.apache.parquet"
	case "MsgPack":
		return "application/msgpack"
	}
	return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
