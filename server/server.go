// Package server exposes the session state, Prometheus metrics and contract event
// streams over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"blockcoop/events"
	"blockcoop/session"
)

// SessionView reports the current wallet session.
type SessionView interface {
	Current() (session.Session, bool)
	Role() string
}

// EventSource opens contract event streams.
type EventSource interface {
	Subscribe(ctx context.Context, name string) (*events.Subscription, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Sessions SessionView
	Events   EventSource
	// Metrics defaults to the Prometheus default gatherer.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server serves the read-only HTTP surface.
type Server struct {
	sessions SessionView
	events   EventSource
	metrics  http.Handler
	logger   *slog.Logger

	router http.Handler
}

// New constructs the router.
func New(cfg Config) *Server {
	srv := &Server{
		sessions: cfg.Sessions,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if srv.metrics == nil {
		srv.metrics = promhttp.Handler()
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	srv.logger = srv.logger.With(slog.String("component", "server"))
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics)
	r.Get("/session", s.getSession)
	r.Get("/events/{name}", s.streamEvents)
	return r
}

type sessionResponse struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	ChainID   uint64 `json:"chainId,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	if s.sessions != nil {
		if sess, ok := s.sessions.Current(); ok {
			resp = sessionResponse{
				Connected: true,
				Account:   sess.Account.Hex(),
				ChainID:   sess.ChainID,
				Role:      s.sessions.Role(),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs the server on addr until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.router, "blockcoop"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
