// Package frontend is the HTTP surface of the session relay: health,
// stats, session history queries, and the websocket upgrade handshake.
package frontend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// Store is the subset of internal/store.DB the Frontend reads from.
type Store interface {
	GetActiveSessions() ([]types.ActiveSessionSummary, error)
	GetAllSessions(limit, offset int) ([]types.ActiveSessionSummary, error)
	GetSessionEvents(sessionID string, fromIndex, limit int) ([]types.Event, int, error)
	GetStats() (types.Stats, error)
	CleanupOldSessions(maxAgeHours int) (int, error)
}

// ConnectionCounter is the subset of internal/wsconn.Hub the Frontend
// needs for /stats and /health.
type ConnectionCounter interface {
	ConnectionCounts() (viewers, trackers int)
}

// Upgrader is served directly at GET /ws; internal/wsconn.Hub
// implements http.Handler itself.
type Upgrader interface {
	http.Handler
}

// Server is the HTTP server for the session relay.
type Server struct {
	store Store
	hub   ConnectionCounter
	ws    Upgrader

	startedAt time.Time
	mux       *http.ServeMux
	server    *http.Server
}

// New creates a Server bound to addr (host:port) and registers its
// routes.
func New(addr string, store Store, hub ConnectionCounter, ws Upgrader) *Server {
	s := &Server{
		store:     store,
		hub:       hub,
		ws:        ws,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket upgrades need no write timeout
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	log.Printf("sessionrelay: frontend listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /sessions/active", s.handleActiveSessions)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/{id}/events", s.handleSessionEvents)
	s.mux.HandleFunc("DELETE /sessions/cleanup", s.handleCleanup)
	s.mux.Handle("GET /ws", s.ws)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sessionrelay",
		"status":  "ok",
	})
}

func (s *Server) uptime() string {
	return fmt.Sprintf("%.0fs", time.Since(s.startedAt).Seconds())
}
