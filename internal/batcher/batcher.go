// Package batcher implements the write-behind queue standing between the
// SessionRegistry and the Store: it absorbs a steady stream of small
// enqueues and turns them into infrequent, size-bounded transactions.
package batcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// Store is the subset of internal/store.DB the Batcher needs. Defined
// here so tests can supply a fake.
type Store interface {
	ApplyBatches(batches []types.Batch) error
}

// Batcher accumulates Batches in a FIFO queue and flushes them to the
// Store either on a fixed interval or immediately once the queue grows
// to twice the configured batch size.
type Batcher struct {
	store    Store
	size     int
	interval time.Duration

	mu    sync.Mutex
	queue []types.Batch

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Batcher. size and interval come from the BATCH_SIZE and
// BATCH_INTERVAL configuration values; size must be positive.
func New(store Store, size int, interval time.Duration) *Batcher {
	if size <= 0 {
		size = 1
	}
	return &Batcher{
		store:    store,
		size:     size,
		interval: interval,
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run drives the flush loop until Shutdown is called. Intended to be
// started in its own goroutine by the composition root.
func (b *Batcher) Run() {
	defer close(b.doneCh)
	for {
		select {
		case <-time.After(b.interval):
			b.flush()
		case <-b.flushCh:
			b.flush()
		case <-b.stopCh:
			b.flush()
			return
		}
	}
}

// Enqueue appends batch to the tail of the queue. Non-blocking: it never
// waits on the Store. If the queue length reaches 2*size, an immediate
// flush is requested to bound memory growth.
func (b *Batcher) Enqueue(batch types.Batch) {
	b.mu.Lock()
	b.queue = append(b.queue, batch)
	n := len(b.queue)
	b.mu.Unlock()

	if n >= 2*b.size {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

// flush drains up to size entries from the head of the queue and applies
// them in one Store transaction. On failure the drained entries are
// re-queued at the head, preserving their relative order, so a later
// flush retries them before any newer entries.
func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	n := b.size
	if n > len(b.queue) {
		n = len(b.queue)
	}
	drained := b.queue[:n]
	b.mu.Unlock()

	if err := b.store.ApplyBatches(drained); err != nil {
		fmt.Printf("[%s] batcher: flush of %d entries failed, re-queueing: %v\n",
			time.Now().Format(time.RFC3339), len(drained), err)
		b.mu.Lock()
		b.queue = append(append([]types.Batch{}, drained...), b.queue[n:]...)
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.queue = b.queue[n:]
	b.mu.Unlock()
}

// Shutdown signals the Run loop to stop, waits for its final
// drain-and-flush to complete, then performs any remaining flushes
// synchronously until the queue is empty.
func (b *Batcher) Shutdown() {
	close(b.stopCh)
	<-b.doneCh

	for {
		b.mu.Lock()
		empty := len(b.queue) == 0
		b.mu.Unlock()
		if empty {
			return
		}
		b.flush()
	}
}
