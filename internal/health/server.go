// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/ManuGH/meetbot/internal/log"
)

// ServerConfig configures the side server.
type ServerConfig struct {
	Addr string
	// RequestsPerMinute limits each client address. Zero disables the limit.
	RequestsPerMinute int
	ServiceName       string
}

// NewRouter mounts /healthz, /readyz and /metrics.
func NewRouter(m *Manager, cfg ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if cfg.RequestsPerMinute > 0 {
		r.Use(rateLimit(cfg.RequestsPerMinute, time.Minute))
	}
	r.Use(otelHTTP(cfg.ServiceName))

	r.Get("/healthz", m.ServeHealth)
	r.Get("/readyz", m.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

// otelHTTP traces requests other than the probes themselves.
func otelHTTP(service string) func(http.Handler) http.Handler {
	if service == "" {
		service = "meetbot"
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(func(r *http.Request) bool {
				switch r.URL.Path {
				case "/healthz", "/readyz", "/metrics":
					return false
				}
				return true
			}),
		)
	}
}

// Server is the bot's HTTP side server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds cfg.Addr. Serve must be called to accept connections.
func Listen(m *Manager, cfg ServerConfig) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("health: listen %s: %w", cfg.Addr, err)
	}
	return &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           NewRouter(m, cfg),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	logger := log.WithComponent("health")
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()
	logger.Info().Str(log.FieldEvent, "health.listening").Str("addr", s.Addr()).Msg("side server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}
