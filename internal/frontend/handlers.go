package frontend

import (
	"log"
	"net/http"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	databaseOK := err == nil
	if err != nil {
		log.Printf("handleHealth: store.GetStats: %v", err)
	}

	viewers, trackers := s.hub.ConnectionCounts()

	status := "ok"
	if !databaseOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": nowRFC3339(),
		"uptime":    s.uptime(),
		"database": map[string]any{
			"totals": stats,
		},
		"sessions": map[string]any{
			"counts": stats,
		},
		"websockets": map[string]any{
			"counts": map[string]int{"viewers": viewers, "trackers": trackers},
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		log.Printf("handleStats: store.GetStats: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	viewers, trackers := s.hub.ConnectionCounts()

	writeJSON(w, http.StatusOK, map[string]any{
		"totalClients":   viewers + trackers,
		"activeSessions": stats.ActiveSessions,
		"viewers":        viewers,
		"trackers":       trackers,
		"totalEvents":    stats.TotalEvents,
		"uptime":         s.uptime(),
	})
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.GetActiveSessions()
	if err != nil {
		log.Printf("handleActiveSessions: store.GetActiveSessions: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.store.GetAllSessions(limit, offset)
	if err != nil {
		log.Printf("handleListSessions: store.GetAllSessions: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	fromIndex, err := parseIntQuery(r, "fromIndex", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntQuery(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, _, err := s.store.GetSessionEvents(sessionID, fromIndex, limit)
	if err != nil {
		log.Printf("handleSessionEvents: store.GetSessionEvents: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if events == nil {
		events = []types.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"events":    events,
		"fromIndex": fromIndex,
		"count":     len(events),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	maxAgeHours, err := parseIntQuery(r, "maxAgeHours", 24)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.store.CleanupOldSessions(maxAgeHours)
	if err != nil {
		log.Printf("handleCleanup: store.CleanupOldSessions: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}
