// Package urlengine serves the tables backed by remote HTTP(S) resources.
package urlengine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hugr-lab/url-engine/pkg/catalog"
	"github.com/hugr-lab/url-engine/pkg/hostfilter"
	"github.com/hugr-lab/url-engine/pkg/storages"
	urlstorage "github.com/hugr-lab/url-engine/pkg/storages/url"
)

const DefaultOutputFormat = "JSONEachRow"

type Config struct {
	Settings   storages.Settings
	HostFilter *hostfilter.Filter
	// TablesFile is the YAML file of the table definitions loaded on Init.
	TablesFile string
	// Debug logs every request at info level.
	Debug bool
}

type Service struct {
	config Config

	router  *http.ServeMux
	factory *storages.Factory
	catalog *catalog.Service
}

func New(config Config) *Service {
	f := storages.NewFactory()
	urlstorage.Register(f)
	return &Service{
		config:  config,
		router:  http.NewServeMux(),
		factory: f,
	}
}

func (s *Service) Init(ctx context.Context) error {
	ec, err := storages.NewExecutionContext(s.config.Settings, s.config.HostFilter)
	if err != nil {
		return fmt.Errorf("execution context: %w", err)
	}
	s.catalog = catalog.New(s.factory, ec)
	if s.config.TablesFile != "" {
		if err := s.catalog.Load(ctx, s.config.TablesFile); err != nil {
			return fmt.Errorf("load tables: %w", err)
		}
		log.Info().Str("file", s.config.TablesFile).Int("tables", len(s.catalog.List())).Msg("tables loaded")
	}
	s.endpoints()
	return nil
}

// Factory returns the storage engines registry, custom engines are registered before Init.
func (s *Service) Factory() *storages.Factory {
	return s.factory
}

func (s *Service) Catalog() *catalog.Service {
	return s.catalog
}

func (s *Service) endpoints() {
	mw := s.middlewares()

	s.router.Handle("GET /tables", mw(http.HandlerFunc(s.listHandler)))
	s.router.Handle("POST /tables", mw(http.HandlerFunc(s.createHandler)))
	s.router.Handle("GET /tables/{catalog}/{table}", mw(http.HandlerFunc(s.readHandler)))
	s.router.Handle("POST /tables/{catalog}/{table}", mw(http.HandlerFunc(s.writeHandler)))
	s.router.Handle("DELETE /tables/{catalog}/{table}", mw(http.HandlerFunc(s.dropHandler)))
	s.router.Handle("POST /tables/{catalog}/{table}/rename", mw(http.HandlerFunc(s.renameHandler)))
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
