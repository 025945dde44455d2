package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	urlengine "github.com/hugr-lab/url-engine"
)

func main() {
	conf := loadConfig()
	conf.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hf, err := conf.HostFilter()
	if err != nil {
		log.Fatal().Err(err).Msg("remote host filter")
	}
	if hf.Empty() {
		log.Warn().Msg("remote host filter is empty, every host is allowed")
	}

	engine := urlengine.New(urlengine.Config{
		Settings:   conf.Settings,
		HostFilter: hf,
		TablesFile: conf.TablesFile,
		Debug:      conf.Debug,
	})
	if err := engine.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialization")
	}

	srv := &http.Server{
		Addr:              conf.Bind,
		Handler:           corsMiddleware(conf.Cors)(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("bind", conf.Bind).Bool("debug", conf.Debug).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}
