package storages

import (
	"net/http"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/hugr-lab/url-engine/pkg/expr"
	"github.com/hugr-lab/url-engine/pkg/formats"
	"github.com/hugr-lab/url-engine/pkg/hostfilter"
	"github.com/hugr-lab/url-engine/pkg/transport"
)

type Settings struct {
	MaxRedirects      int
	Timeouts          transport.Timeouts
	MaxBlockSize      int
	BufferSize        int
	CompressionLevel  int
	SkipUnknownFields bool
	CSVDelimiter      rune
	NullString        string
	Headers           http.Header
}

func DefaultSettings() Settings {
	return Settings{
		MaxRedirects: 0,
		Timeouts:     transport.DefaultTimeouts(),
		MaxBlockSize: formats.DefaultMaxBlockSize,
		BufferSize:   transport.DefaultBufferSize,
		CSVDelimiter: ',',
		NullString:   formats.DefaultNullString,
	}
}

// ExecutionContext carries the settings and the shared services of a query.
type ExecutionContext struct {
	QueryID    string
	Settings   Settings
	HostFilter *hostfilter.Filter
	Formats    *formats.Factory
	Evaluator  *expr.Evaluator
	Allocator  memory.Allocator
}

func NewExecutionContext(settings Settings, hf *hostfilter.Filter) (*ExecutionContext, error) {
	ev, err := expr.New(expr.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &ExecutionContext{
		QueryID:    uuid.NewString(),
		Settings:   settings,
		HostFilter: hf,
		Formats:    formats.Default(),
		Evaluator:  ev,
		Allocator:  memory.DefaultAllocator,
	}, nil
}

// ForQuery returns the copy of the context bound to the query, a new id is generated if empty.
func (ec *ExecutionContext) ForQuery(queryID string) *ExecutionContext {
	if queryID == "" {
		queryID = uuid.NewString()
	}
	c := *ec
	c.QueryID = queryID
	return &c
}

func (ec *ExecutionContext) FormatSettings(maxBlockSize int) formats.Settings {
	if maxBlockSize <= 0 {
		maxBlockSize = ec.Settings.MaxBlockSize
	}
	return formats.Settings{
		MaxBlockSize:      maxBlockSize,
		Allocator:         ec.Allocator,
		CSVDelimiter:      ec.Settings.CSVDelimiter,
		NullString:        ec.Settings.NullString,
		SkipUnknownFields: ec.Settings.SkipUnknownFields,
	}
}

func (ec *ExecutionContext) FormatFactory() *formats.Factory {
	if ec.Formats == nil {
		return formats.Default()
	}
	return ec.Formats
}

// TransportConfig returns the client configuration of the context over the shared connection pool.
func (ec *ExecutionContext) TransportConfig(base http.RoundTripper, auth transport.AuthParams) transport.Config {
	return transport.Config{
		Timeouts:     ec.Settings.Timeouts,
		MaxRedirects: ec.Settings.MaxRedirects,
		HostFilter:   ec.HostFilter,
		Headers:      ec.Settings.Headers,
		Auth:         auth,
		BufferSize:   ec.Settings.BufferSize,
		Base:         base,
	}
}
