// Package url implements the table engine backed by a remote HTTP(S) resource.
package url

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/compression"
	"github.com/hugr-lab/url-engine/pkg/expr"
	"github.com/hugr-lab/url-engine/pkg/hostfilter"
	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/transport"
	"github.com/hugr-lab/url-engine/pkg/types"
)

const (
	EngineURL       = "URL"
	EngineURLBridge = "URLBridge"

	QueryIDHeader = "X-Query-Id"
)

type Option func(*Storage)

func WithHooks(h Hooks) Option {
	return func(s *Storage) {
		s.hooks = h
	}
}

func WithAuth(auth transport.AuthParams) Option {
	return func(s *Storage) {
		s.auth = auth
	}
}

func WithEngine(name string) Option {
	return func(s *Storage) {
		s.engine = name
	}
}

// WithTransport replaces the connection pool of the table.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Storage) {
		s.base = rt
	}
}

// Storage is the table stored in the remote resource.
type Storage struct {
	engine      string
	uri         *neturl.URL
	format      string
	compression compression.Method
	columns     types.Columns
	constraints []types.Constraint
	global      *storages.ExecutionContext
	hooks       Hooks
	auth        transport.AuthParams
	base        http.RoundTripper

	renameMu sync.Mutex
	id       atomic.Pointer[types.TableID]
}

// New checks the resource against the host filter of the context before anything else.
// The format name is resolved when a stream is opened.
func New(uri string, id types.TableID, format string, columns types.Columns, constraints []types.Constraint,
	ec *storages.ExecutionContext, compressionMethod string, opts ...Option) (*Storage, error) {
	if ec == nil {
		return nil, errors.New("execution context is required")
	}
	u, err := hostfilter.Validate(uri, ec.HostFilter)
	if err != nil {
		return nil, err
	}
	if err := columns.Validate(); err != nil {
		return nil, err
	}
	method, err := compression.Parse(compressionMethod)
	if err != nil {
		return nil, err
	}
	if ec.Evaluator == nil {
		ev, err := expr.New(expr.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		c := *ec
		c.Evaluator = ev
		ec = &c
	}
	s := &Storage{
		engine:      EngineURL,
		uri:         u,
		format:      format,
		compression: method,
		columns:     columns,
		constraints: constraints,
		global:      ec,
		hooks:       DefaultHooks{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base == nil {
		s.base = transport.NewTransport(ec.Settings.Timeouts)
	}
	// the credentials and the token cache are shared by all requests of the table
	s.base, err = s.auth.RoundTripper(s.base)
	if err != nil {
		return nil, err
	}
	s.id.Store(&id)
	return s, nil
}

func (s *Storage) Engine() string {
	return s.engine
}

// ID returns the current identity snapshot.
func (s *Storage) ID() types.TableID {
	return *s.id.Load()
}

func (s *Storage) URL() *neturl.URL {
	u := *s.uri
	return &u
}

func (s *Storage) Format() string {
	return s.format
}

func (s *Storage) Compression() compression.Method {
	return s.compression
}

func (s *Storage) Columns() types.Columns {
	return s.columns
}

func (s *Storage) Constraints() []types.Constraint {
	return s.constraints
}

// Rename replaces the identity, in-flight reads and writes keep the snapshot they started with.
func (s *Storage) Rename(id types.TableID) error {
	if id.IsZero() {
		return errors.New("table name is empty")
	}
	s.renameMu.Lock()
	defer s.renameMu.Unlock()
	old := s.ID()
	s.id.Store(&id)
	log.Debug().Str("from", old.String()).Str("to", id.String()).Msg("url table renamed")
	return nil
}

func (s *Storage) client(ec *storages.ExecutionContext) (*transport.Client, error) {
	return transport.NewClient(ec.TransportConfig(s.base, transport.AuthParams{}))
}

func queryHeaders(queryID string) http.Header {
	h := http.Header{}
	if queryID != "" {
		h.Set(QueryIDHeader, queryID)
	}
	return h
}

// withParams returns the copy of the URL with the parameters appended in order.
func withParams(u *neturl.URL, params []Param) *neturl.URL {
	out := *u
	for _, p := range params {
		kv := neturl.QueryEscape(p.Name) + "=" + neturl.QueryEscape(p.Value)
		if out.RawQuery == "" {
			out.RawQuery = kv
			continue
		}
		out.RawQuery += "&" + kv
	}
	return &out
}

// Register adds the URL engines to the factory.
// Engine arguments: url, format name and the optional compression method.
func Register(f *storages.Factory) {
	f.Register(EngineURL, creator(EngineURL))
	f.Register(EngineURLBridge, creator(EngineURLBridge, WithHooks(BridgeHooks{})))
}

func creator(engine string, opts ...Option) storages.Creator {
	return func(_ context.Context, args storages.Arguments) (storages.Storage, error) {
		if err := args.CheckArity(2, 3); err != nil {
			return nil, fmt.Errorf("%w: storage %s requires 2 or 3 arguments: url, format and optional compression method", err, engine)
		}
		method := string(compression.Auto)
		if len(args.EngineArgs) == 3 {
			method = args.EngineArgs[2]
		}
		all := append([]Option{WithEngine(engine), WithAuth(args.Auth)}, opts...)
		return New(args.EngineArgs[0], args.ID, args.EngineArgs[1], args.Columns, args.Constraints, args.Context, method, all...)
	}
}
