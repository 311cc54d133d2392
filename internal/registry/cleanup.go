package registry

import "time"

const inactiveEvictionAge = 24 * time.Hour

// StartCleanup runs a background loop that, every interval, evicts
// inactive sessions whose lastActivity is older than 24h from memory.
// This is independent of and uncoordinated with the Store's own
// maxAgeHours cleanup of persisted rows.
func (r *Registry) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictStale()
		case <-stop:
			return
		}
	}
}

func (r *Registry) evictStale() {
	cutoff := time.Now().Add(-inactiveEvictionAge).UnixMilli()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.mu.Lock()
		stale := !s.isActive && s.lastActivity < cutoff
		s.mu.Unlock()
		if stale {
			delete(r.sessions, id)
		}
	}
}
