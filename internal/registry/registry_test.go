package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

type fakeBatcher struct {
	mu      sync.Mutex
	batches []types.Batch
}

func (f *fakeBatcher) Enqueue(b types.Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
}

func TestCreateEmitsSessionStartedAndEnqueuesUpsert(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)

	sub, unsub := r.Subscribe()
	defer unsub()

	id, reassigned := r.Create("sess-1", "user-1", types.Metadata{}, "conn-a")
	if reassigned {
		t.Fatal("expected no reassignment for a brand new session id")
	}
	if id != "sess-1" {
		t.Fatalf("expected id sess-1, got %s", id)
	}

	select {
	case evt := <-sub:
		if evt.Type != EventSessionStarted || evt.SessionID != "sess-1" {
			t.Fatalf("expected sessionStarted for sess-1, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sessionStarted event")
	}

	if len(fb.batches) != 1 || !fb.batches[0].UpsertMetadata {
		t.Fatalf("expected one upsert batch enqueued, got %+v", fb.batches)
	}
}

func TestCreateConflictFromDifferentOwnerMintsNewID(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)

	id1, _ := r.Create("shared", "user-1", types.Metadata{}, "conn-a")
	id2, reassigned := r.Create("shared", "user-2", types.Metadata{}, "conn-b")

	if id1 != "shared" {
		t.Fatalf("expected first caller to keep id shared, got %s", id1)
	}
	if !reassigned {
		t.Fatal("expected second caller under a different owner to be reassigned")
	}
	if id2 == "shared" {
		t.Fatal("expected a synthesized id distinct from shared")
	}
}

func TestCreateSameOwnerReusesID(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)

	r.Create("sess", "user-1", types.Metadata{}, "conn-a")
	id, reassigned := r.Create("sess", "user-1", types.Metadata{}, "conn-a")

	if reassigned {
		t.Fatal("expected no reassignment when the same owner re-announces")
	}
	if id != "sess" {
		t.Fatalf("expected id sess, got %s", id)
	}
}

func TestAppendEventsTruncatesToMostRecentHalf(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 4)

	r.Create("sess", "user-1", types.Metadata{}, "conn-a")
	for i := 0; i < 6; i++ {
		if err := r.AppendEvents("sess", []types.Event{[]byte(`{"i":` + string(rune('0'+i)) + `}`)}); err != nil {
			t.Fatalf("append events: %v", err)
		}
	}

	events, total, err := r.GetEvents("sess", 0, 0)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if total != len(events) {
		t.Fatalf("expected total to match buffer length, got total=%d len=%d", total, len(events))
	}
	if total > 4 {
		t.Fatalf("expected buffer trimmed to at most 4 events, got %d", total)
	}
}

func TestAppendEventsOnInactiveSessionFails(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)

	r.Create("sess", "user-1", types.Metadata{}, "conn-a")
	if err := r.End("sess"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := r.AppendEvents("sess", []types.Event{[]byte(`{}`)}); err == nil {
		t.Fatal("expected appending events to an inactive session to fail")
	}
}

func TestGetEventsFromIndexBeyondBufferIsEmpty(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)
	r.Create("sess", "user-1", types.Metadata{}, "conn-a")
	r.AppendEvents("sess", []types.Event{[]byte(`{}`), []byte(`{}`)})

	events, total, err := r.GetEvents("sess", 100, 10)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty slice for out-of-range fromIndex, got %d", len(events))
	}
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
}

func TestEndEmitsSessionEndedAndMarksInactive(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)
	r.Create("sess", "user-1", types.Metadata{}, "conn-a")

	sub, unsub := r.Subscribe()
	defer unsub()

	if err := r.End("sess"); err != nil {
		t.Fatalf("end: %v", err)
	}

	foundEnded := false
	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub:
			if evt.Type == EventSessionEnded {
				foundEnded = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for sessionEnded event")
		}
		if foundEnded {
			break
		}
	}
	if !foundEnded {
		t.Fatal("expected a sessionEnded domain event")
	}

	snap, err := r.Snapshot("sess")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.IsActive {
		t.Fatal("expected session to be inactive after End")
	}
}

func TestEvictStaleRemovesOnlyInactiveOldSessions(t *testing.T) {
	fb := &fakeBatcher{}
	r := New(fb, 0)
	r.Create("stale", "user-1", types.Metadata{}, "conn-a")
	r.End("stale")
	r.Create("fresh", "user-2", types.Metadata{}, "conn-b")

	r.mu.Lock()
	r.sessions["stale"].mu.Lock()
	r.sessions["stale"].lastActivity = time.Now().Add(-48 * time.Hour).UnixMilli()
	r.sessions["stale"].mu.Unlock()
	r.mu.Unlock()

	r.evictStale()

	if _, err := r.Snapshot("stale"); err == nil {
		t.Fatal("expected stale session to be evicted")
	}
	if _, err := r.Snapshot("fresh"); err != nil {
		t.Fatal("expected fresh active session to survive eviction")
	}
}
