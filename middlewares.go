package urlengine

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

func (s *Service) middlewares() func(next http.Handler) http.Handler {
	var mm []func(next http.Handler) http.Handler
	// access log
	mm = append(mm, hlog.NewHandler(log.Logger))
	mm = append(mm, hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		level := zerolog.DebugLevel
		if s.config.Debug {
			level = zerolog.InfoLevel
		}
		if status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		hlog.FromRequest(r).WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))

	// compress
	mm = append(mm, compressMW)

	return buildMW(mm...)
}

func buildMW(middlewares ...func(next http.Handler) http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type flushWriter interface {
	io.Writer
	Flush() error
}

func compressMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept-Encoding")
		switch {
		case strings.Contains(accept, "br"):
			w.Header().Set("Content-Encoding", "br")
			w.Header().Add("Vary", "Accept-Encoding")

			brWriter := brotli.NewWriterLevel(w, brotli.BestSpeed)
			defer brWriter.Close()

			next.ServeHTTP(&compressResponseWriter{
				ResponseWriter: w,
				compressWriter: brWriter,
			}, r)
		case strings.Contains(accept, "gzip"):
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Add("Vary", "Accept-Encoding")

			gz, _ := gzip.NewWriterLevel(w, gzip.BestSpeed)
			defer gz.Close()

			next.ServeHTTP(&compressResponseWriter{
				ResponseWriter: w,
				compressWriter: gz,
			}, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type compressResponseWriter struct {
	http.ResponseWriter
	compressWriter flushWriter
	wroteHeader    bool
}

func (c *compressResponseWriter) WriteHeader(statusCode int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true

	c.Header().Del("Content-Length")
	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *compressResponseWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.compressWriter.Write(b)
}

func (c *compressResponseWriter) Flush() {
	_ = c.compressWriter.Flush()
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
