package url

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/transport"
)

// Param is the query parameter appended to the resource URL, the order is kept.
type Param struct {
	Name  string
	Value string
}

// ReadRequest describes the read the hooks are building the request for.
type ReadRequest struct {
	Columns      []string
	Query        storages.QueryInfo
	Context      *storages.ExecutionContext
	MaxBlockSize int
}

// Hooks customize the read request of the engines derived from URL.
type Hooks interface {
	ReadMethod() string
	ReadURIParams(r ReadRequest) []Param
	// ReadBody returns the request body producer, nil for no body.
	ReadBody(r ReadRequest) transport.BodyFunc
}

// DefaultHooks reads the resource as is with GET.
type DefaultHooks struct{}

func (DefaultHooks) ReadMethod() string                      { return http.MethodGet }
func (DefaultHooks) ReadURIParams(ReadRequest) []Param       { return nil }
func (DefaultHooks) ReadBody(ReadRequest) transport.BodyFunc { return nil }

// BridgeHooks push the requested columns and the query down to the remote service.
type BridgeHooks struct{}

func (BridgeHooks) ReadMethod() string { return http.MethodPost }

func (BridgeHooks) ReadURIParams(r ReadRequest) []Param {
	params := []Param{
		{Name: "columns", Value: strings.Join(r.Columns, ",")},
		{Name: "max_block_size", Value: strconv.Itoa(r.MaxBlockSize)},
	}
	if r.Context != nil {
		params = append(params, Param{Name: "query_id", Value: r.Context.QueryID})
	}
	return params
}

type bridgeRequest struct {
	Columns []string `json:"columns"`
	Filter  string   `json:"filter,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

func (BridgeHooks) ReadBody(r ReadRequest) transport.BodyFunc {
	body := bridgeRequest{
		Columns: r.Columns,
		Filter:  r.Query.Filter,
		Limit:   r.Query.Limit,
	}
	return func(w io.Writer) error {
		return json.NewEncoder(w).Encode(body)
	}
}
