// Package adminserver exposes a small read-only HTTP surface (A2) for
// operators: a health check, the latest cycle summary, and recent audit
// log entries from the history store.
package adminserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goingdark-social/boostbot/internal/history"
	"github.com/goingdark-social/boostbot/internal/selector"
)

// HistoryReader reads back recent audit log entries.
type HistoryReader interface {
	Recent(limit int) ([]history.Entry, error)
}

// Server serves the admin HTTP surface on a dedicated listen address.
type Server struct {
	addr    string
	reader  HistoryReader
	router  chi.Router

	mu      sync.Mutex
	summary selector.Summary
}

// New returns a Server listening on addr, reading audit entries from reader.
func New(addr string, reader HistoryReader) *Server {
	s := &Server{addr: addr, reader: reader}
	s.router = s.buildRouter()
	return s
}

// SetLastSummary records the most recent cycle's summary for /status.
func (s *Server) SetLastSummary(sum selector.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = sum
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sum := s.summary
	s.mu.Unlock()
	jsonResponse(w, sum, http.StatusOK)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.reader.Recent(100)
	if err != nil {
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, entries, http.StatusOK)
}

func jsonResponse(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start runs the admin HTTP server until ctx is cancelled, then shuts it
// down gracefully with a bounded timeout.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting admin HTTP server", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("admin server shutdown error", "err", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("admin server error", "err", err)
	}
}
