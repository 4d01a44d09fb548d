package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HTTPServer serves the chat API and the operational endpoints.
type HTTPServer struct {
	server *http.Server
	router chi.Router
	logger *slog.Logger
}

type HTTPServerConfig struct {
	Port   int
	Router RouterConfig
}

// NewHTTPServer builds the router. Answer generation can take most of a
// minute, so writes get a longer deadline than reads.
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.Router.Answerer == nil {
		return nil, errors.New("http server: answerer is required")
	}
	logger := cfg.Router.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := NewRouter(cfg.Router)
	return &HTTPServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
		router: router,
		logger: logger,
	}, nil
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *HTTPServer) Start() error {
	s.logger.Info("chat API listening", "address", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve chat API: %w", err)
}

// Shutdown drains in-flight answers until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("draining chat API")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain chat API: %w", err)
	}
	s.logger.Info("chat API stopped")
	return nil
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// requestLoggingMiddleware logs one line per request. Health endpoints log
// at debug so they do not drown out chat traffic.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				level = slog.LevelDebug
			}
			logger.LogAttrs(r.Context(), level, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// corsMiddleware answers preflights and echoes allowed origins. With no
// configured origins every origin is allowed without credentials.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowedOrigins) == 0 {
				origin = "*"
			}

			if origin != "" && (wildcard || slices.Contains(allowedOrigins, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				h.Set("Access-Control-Max-Age", "86400")
				if origin != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler reports liveness only.
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler reports whether the answer pipeline can serve.
func readinessCheckHandler(ready func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
