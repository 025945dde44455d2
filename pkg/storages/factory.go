package storages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Creator func(ctx context.Context, args Arguments) (Storage, error)

type engine struct {
	name    string
	creator Creator
}

type Factory struct {
	mu      sync.RWMutex
	engines map[string]engine
}

func NewFactory() *Factory {
	return &Factory{engines: make(map[string]engine)}
}

func (f *Factory) Register(name string, c Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines[strings.ToUpper(name)] = engine{name: name, creator: c}
}

// Create builds the storage of the table, engine names are case insensitive.
func (f *Factory) Create(ctx context.Context, args Arguments) (Storage, error) {
	f.mu.RLock()
	e, ok := f.engines[strings.ToUpper(args.Engine)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, args.Engine)
	}
	s, err := e.creator(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("storage %s of table %s: %w", args.Engine, args.ID, err)
	}
	return s, nil
}

func (f *Factory) Engines() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.engines))
	for _, e := range f.engines {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}
