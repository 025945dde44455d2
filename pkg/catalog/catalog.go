// Package catalog keeps the tables registered in the engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/types"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
)

type Service struct {
	mu     sync.RWMutex
	tables map[types.TableID]storages.Storage

	factory *storages.Factory
	ec      *storages.ExecutionContext
}

// New returns the catalog creating the tables with the factory, ec is the global context of the tables.
func New(factory *storages.Factory, ec *storages.ExecutionContext) *Service {
	return &Service{
		tables:  make(map[types.TableID]storages.Storage),
		factory: factory,
		ec:      ec,
	}
}

func (s *Service) Context() *storages.ExecutionContext {
	return s.ec
}

func (s *Service) Create(ctx context.Context, d Definition) (storages.Storage, error) {
	args, err := d.Arguments(s.ec)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(args.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, args.ID)
	}
	st, err := s.factory.Create(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := s.Attach(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Load creates the tables of the definitions file.
func (s *Service) Load(ctx context.Context, path string) error {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return err
	}
	for _, d := range defs {
		if _, err := s.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Attach(st storages.Storage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := st.ID()
	if _, ok := s.tables[id]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, id)
	}
	s.tables[id] = st
	log.Info().Str("table", id.String()).Str("engine", st.Engine()).Msg("table attached")
	return nil
}

func (s *Service) Drop(id types.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	delete(s.tables, id)
	log.Info().Str("table", id.String()).Msg("table dropped")
	return nil
}

func (s *Service) Rename(from, to types.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tables[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, from)
	}
	if _, ok := s.tables[to]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, to)
	}
	if err := st.Rename(to); err != nil {
		return err
	}
	delete(s.tables, from)
	s.tables[to] = st
	log.Info().Str("from", from.String()).Str("to", to.String()).Msg("table renamed")
	return nil
}

func (s *Service) Get(id types.TableID) (storages.Storage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	return st, nil
}

// List returns the tables ordered by the identity.
func (s *Service) List() []storages.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storages.Storage, 0, len(s.tables))
	for _, st := range s.tables {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}
