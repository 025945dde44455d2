// Package storages defines the contract between the query engine and the table storage engines.
package storages

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/transport"
	"github.com/hugr-lab/url-engine/pkg/types"
)

var (
	ErrNumberOfArgumentsDoesntMatch = errors.New("number of arguments doesn't match")
	ErrUnknownEngine                = errors.New("unknown storage engine")
	ErrSchemaMismatch               = errors.New("schema mismatch")
	ErrSinkClosed                   = errors.New("sink is closed")
)

// Storage is the table backed by an external resource.
type Storage interface {
	Engine() string
	ID() types.TableID
	Columns() types.Columns
	Constraints() []types.Constraint
	// Read returns the records of the requested columns, all columns if none requested.
	Read(ctx context.Context, columns []string, q QueryInfo, ec *ExecutionContext, maxBlockSize int) (*streams.RowSequence, error)
	// Write opens the sink of the rows of all declared columns.
	Write(ctx context.Context, q QueryInfo, ec *ExecutionContext) (RowSink, error)
	Rename(id types.TableID) error
}

// RowSink consumes the records written into the table.
// Finish commits the written data, Close without Finish aborts it.
type RowSink interface {
	Header() *arrow.Schema
	Write(ctx context.Context, rec arrow.RecordBatch) error
	Finish(ctx context.Context) error
	Close() error
}

// QueryInfo describes the query pushed down to the storage.
type QueryInfo struct {
	QueryID string `json:"query_id,omitempty"`
	Filter  string `json:"filter,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Arguments are the parsed table definition passed to the engine creator.
type Arguments struct {
	Engine      string
	EngineArgs  []string
	ID          types.TableID
	Columns     types.Columns
	Constraints []types.Constraint
	Context     *ExecutionContext
	Auth        transport.AuthParams
}

func (a Arguments) CheckArity(counts ...int) error {
	for _, n := range counts {
		if len(a.EngineArgs) == n {
			return nil
		}
	}
	return ErrNumberOfArgumentsDoesntMatch
}
