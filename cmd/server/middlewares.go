package main

import (
	"net/http"
	"slices"
	"strings"
)

type CorsConfig struct {
	CorsAllowedOrigins []string
	CorsAllowedHeaders []string
	CorsAllowedMethods []string
}

func corsMiddleware(c CorsConfig) func(next http.Handler) http.Handler {
	if len(c.CorsAllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if len(c.CorsAllowedHeaders) == 0 {
		c.CorsAllowedHeaders = []string{
			"Content-Type", "Content-Encoding", "Accept",
			"Accept-Encoding", "X-Query-Id",
		}
	}
	if len(c.CorsAllowedMethods) == 0 {
		c.CorsAllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	wildcard := len(c.CorsAllowedOrigins) == 1 && c.CorsAllowedOrigins[0] == "*"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Headers", "*")
				w.Header().Set("Access-Control-Allow-Methods", "*")
				w.Header().Set("Access-Control-Expose-Headers", "X-Query-Id")
			case origin != "" && slices.Contains(c.CorsAllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(c.CorsAllowedHeaders, ", "))
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(c.CorsAllowedMethods, ", "))
				w.Header().Set("Access-Control-Expose-Headers", "X-Query-Id")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
