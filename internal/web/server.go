// Package web provides the HTTP status server for the hvac-monitor daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hvac-monitor/internal/monitor"
	"github.com/sweeney/hvac-monitor/internal/status"
)

// StatusChecker produces the live sensor status. Implemented by *monitor.StatusChecker.
type StatusChecker interface {
	Check(ctx context.Context) (monitor.StatusReport, error)
}

// Server serves the status page, health, live status and metrics over HTTP.
type Server struct {
	httpServer      *http.Server
	tracker         *status.Tracker
	checker         StatusChecker
	shutdownTimeout time.Duration
}

// New creates a Server that reads state from the given tracker.
// A nil checker disables /status.
func New(addr string, tracker *status.Tracker, checker StatusChecker) *Server {
	s := &Server{
		tracker:         tracker,
		checker:         checker,
		shutdownTimeout: 10 * time.Second,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve implements suture.Service: it listens until ctx is cancelled and
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) String() string {
	return "http-server"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := checkHealth(s.tracker.Snapshot())
	code := http.StatusOK
	if h.Status != HealthHealthy {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, h)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		http.NotFound(w, r)
		return
	}
	report, err := s.checker.Check(r.Context())
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}
