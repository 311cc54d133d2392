package batcher

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

type fakeStore struct {
	mu      sync.Mutex
	applied [][]types.Batch
	failN   int // fail this many calls before succeeding
}

func (f *fakeStore) ApplyBatches(batches []types.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("simulated store failure")
	}
	cp := append([]types.Batch{}, batches...)
	f.applied = append(f.applied, cp)
	return nil
}

func (f *fakeStore) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func TestEnqueueTriggersImmediateFlushAtDoubleSize(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 2, time.Hour)
	go b.Run()
	defer b.Shutdown()

	for i := 0; i < 4; i++ {
		b.Enqueue(types.Batch{SessionID: "s1"})
	}

	deadline := time.After(time.Second)
	for store.appliedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an immediate flush once queue reached 2*size")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShutdownDrainsRemainingQueue(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 10, time.Hour)
	go b.Run()

	b.Enqueue(types.Batch{SessionID: "a"})
	b.Enqueue(types.Batch{SessionID: "b"})
	b.Enqueue(types.Batch{SessionID: "c"})

	b.Shutdown()

	var total int
	for _, chunk := range store.applied {
		total += len(chunk)
	}
	if total != 3 {
		t.Fatalf("expected all 3 enqueued batches applied by shutdown, got %d", total)
	}
}

func TestFailedFlushRequeuesAtHead(t *testing.T) {
	store := &fakeStore{failN: 1}
	b := New(store, 10, time.Hour)

	b.Enqueue(types.Batch{SessionID: "first"})
	b.flush() // fails, re-queues "first"
	b.Enqueue(types.Batch{SessionID: "second"})
	b.flush() // succeeds, should apply "first" then "second" in order

	if store.appliedCount() != 1 {
		t.Fatalf("expected exactly one successful flush, got %d", store.appliedCount())
	}
	got := store.applied[0]
	if len(got) != 2 || got[0].SessionID != "first" || got[1].SessionID != "second" {
		t.Fatalf("expected [first, second] preserving order after requeue, got %+v", got)
	}
}

func TestFlushOnIntervalTick(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 100, 10*time.Millisecond)
	go b.Run()
	defer b.Shutdown()

	b.Enqueue(types.Batch{SessionID: "tick"})

	deadline := time.After(time.Second)
	for store.appliedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected interval-driven flush")
		case <-time.After(time.Millisecond):
		}
	}
}
