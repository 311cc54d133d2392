package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

type fakeStore struct {
	active      []types.ActiveSessionSummary
	all         []types.ActiveSessionSummary
	events      []types.Event
	eventsTotal int
	stats       types.Stats
	storeErr    error
	deleted     int
}

func (f *fakeStore) GetActiveSessions() ([]types.ActiveSessionSummary, error) {
	return f.active, f.storeErr
}

func (f *fakeStore) GetAllSessions(limit, offset int) ([]types.ActiveSessionSummary, error) {
	return f.all, f.storeErr
}

func (f *fakeStore) GetSessionEvents(sessionID string, fromIndex, limit int) ([]types.Event, int, error) {
	return f.events, f.eventsTotal, f.storeErr
}

func (f *fakeStore) GetStats() (types.Stats, error) {
	return f.stats, f.storeErr
}

func (f *fakeStore) CleanupOldSessions(maxAgeHours int) (int, error) {
	return f.deleted, f.storeErr
}

type fakeHub struct {
	viewers, trackers int
}

func (f *fakeHub) ConnectionCounts() (int, int) { return f.viewers, f.trackers }

type fakeUpgrader struct{}

func (fakeUpgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func newTestServer() (*Server, *fakeStore, *fakeHub) {
	store := &fakeStore{}
	hub := &fakeHub{}
	return New("127.0.0.1:0", store, hub, fakeUpgrader{}), store, hub
}

func TestHealthReturns200AndJSON(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

func TestStatsReflectsConnectionCounts(t *testing.T) {
	s, _, hub := newTestServer()
	hub.viewers = 3
	hub.trackers = 2

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["viewers"].(float64) != 3 || resp["trackers"].(float64) != 2 {
		t.Fatalf("expected viewers=3 trackers=2, got %+v", resp)
	}
	if resp["totalClients"].(float64) != 5 {
		t.Fatalf("expected totalClients=5, got %v", resp["totalClients"])
	}
}

func TestListSessionsEchoesLimitAndOffset(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/sessions?limit=10&offset=5", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["limit"].(float64) != 10 || resp["offset"].(float64) != 5 {
		t.Fatalf("expected echoed limit/offset, got %+v", resp)
	}
}

func TestListSessionsRejectsNegativeLimit(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/sessions?limit=-1", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", w.Code)
	}
}

func TestSessionEventsRoutesPathValue(t *testing.T) {
	s, store, _ := newTestServer()
	store.events = []types.Event{[]byte(`{"i":0}`), []byte(`{"i":1}`)}
	store.eventsTotal = 2

	req := httptest.NewRequest("GET", "/sessions/abc123/events?fromIndex=0&limit=10", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["sessionId"] != "abc123" {
		t.Fatalf("expected sessionId abc123 from path, got %v", resp["sessionId"])
	}
	if resp["count"].(float64) != 2 {
		t.Fatalf("expected count 2, got %v", resp["count"])
	}
}

func TestCleanupReturnsDeletedCount(t *testing.T) {
	s, store, _ := newTestServer()
	store.deleted = 7

	req := httptest.NewRequest("DELETE", "/sessions/cleanup?maxAgeHours=48", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	var resp map[string]int
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["deletedCount"] != 7 {
		t.Fatalf("expected deletedCount 7, got %d", resp["deletedCount"])
	}
}

func TestStoreErrorSurfacesAs500(t *testing.T) {
	s, store, _ := newTestServer()
	store.storeErr = errBoom

	req := httptest.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store error, got %d", w.Code)
	}
}

func TestWebSocketUpgradeRouteDelegatesToHub(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/ws?type=viewer", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusSwitchingProtocols {
		t.Fatalf("expected /ws to delegate to the upgrader, got %d", w.Code)
	}
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
