// Package formats is the registry of the named row codecs.
package formats

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/url-engine/pkg/streams"
)

var ErrUnknownFormat = errors.New("unknown format")

const (
	DefaultMaxBlockSize = 65505
	DefaultNullString   = `\N`
)

type Settings struct {
	MaxBlockSize int
	Allocator    memory.Allocator
	CSVDelimiter rune
	NullString   string
	// SkipUnknownFields ignores the input fields that are not table columns.
	SkipUnknownFields bool
	// KnownFields are the table columns that are not requested, text codecs skip them silently.
	KnownFields []string
}

func (s Settings) normalize() Settings {
	if s.MaxBlockSize <= 0 {
		s.MaxBlockSize = DefaultMaxBlockSize
	}
	if s.Allocator == nil {
		s.Allocator = memory.DefaultAllocator
	}
	if s.CSVDelimiter == 0 {
		s.CSVDelimiter = ','
	}
	if s.NullString == "" {
		s.NullString = DefaultNullString
	}
	return s
}

func (s Settings) known(name string) bool {
	for _, k := range s.KnownFields {
		if k == name {
			return true
		}
	}
	return false
}

type InputCreator func(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error)

type OutputCreator func(w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error)

// ParseError is the decoding error of the input, Row is 1-based, 0 if unknown.
type ParseError struct {
	Format string
	Row    int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: cannot parse row %d: %v", e.Format, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Factory struct {
	mu      sync.RWMutex
	inputs  map[string]InputCreator
	outputs map[string]OutputCreator
}

// NewFactory returns the factory with the built-in codecs.
func NewFactory() *Factory {
	f := &Factory{
		inputs:  make(map[string]InputCreator),
		outputs: make(map[string]OutputCreator),
	}
	registerBuiltins(f)
	return f
}

func (f *Factory) RegisterInput(name string, c InputCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[name] = c
}

func (f *Factory) RegisterOutput(name string, c OutputCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[name] = c
}

func (f *Factory) Input(name string, r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	f.mu.RLock()
	c, ok := f.inputs[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (input)", ErrUnknownFormat, name)
	}
	return c(r, header, s.normalize())
}

func (f *Factory) Output(name string, w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error) {
	f.mu.RLock()
	c, ok := f.outputs[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (output)", ErrUnknownFormat, name)
	}
	return c(w, header, s.normalize())
}

// Names returns the sorted names of the formats supported for input or output.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	seen := make(map[string]struct{}, len(f.inputs))
	for n := range f.inputs {
		seen[n] = struct{}{}
	}
	for n := range f.outputs {
		seen[n] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultFactory = NewFactory()

func Default() *Factory {
	return defaultFactory
}

func RegisterInput(name string, c InputCreator) {
	defaultFactory.RegisterInput(name, c)
}

func RegisterOutput(name string, c OutputCreator) {
	defaultFactory.RegisterOutput(name, c)
}

func Input(name string, r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
	return defaultFactory.Input(name, r, header, s)
}

func Output(name string, w io.Writer, header *arrow.Schema, s Settings) (streams.BlockOutputStream, error) {
	return defaultFactory.Output(name, w, header, s)
}

func Names() []string {
	return defaultFactory.Names()
}

func registerBuiltins(f *Factory) {
	f.RegisterInput("JSONEachRow", newJSONEachRowInput)
	f.RegisterOutput("JSONEachRow", newJSONEachRowOutput)

	for _, def := range []struct {
		name      string
		comma     rune
		withNames bool
	}{
		{"CSV", 0, false},
		{"CSVWithNames", 0, true},
		{"TSV", '\t', false},
		{"TabSeparated", '\t', false},
		{"TSVWithNames", '\t', true},
		{"TabSeparatedWithNames", '\t', true},
	} {
		f.RegisterInput(def.name, csvInputCreator(def.name, def.comma, def.withNames))
		f.RegisterOutput(def.name, csvOutputCreator(def.comma, def.withNames))
	}

	f.RegisterInput("ArrowStream", newArrowStreamInput)
	f.RegisterOutput("ArrowStream", newArrowStreamOutput)
	f.RegisterInput("Parquet", newParquetInput)
	f.RegisterOutput("Parquet", newParquetOutput)
	f.RegisterInput("MsgPack", newMsgPackInput)
	f.RegisterOutput("MsgPack", newMsgPackOutput)
}
