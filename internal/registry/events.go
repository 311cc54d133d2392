package registry

import "github.com/sessionrelay/sessionrelay/internal/types"

// EventType names a domain event the registry emits. These are internal
// pub/sub topics, not wire message types — the ConnectionHub translates
// them into outbound frames.
type EventType string

const (
	EventSessionStarted EventType = "sessionStarted"
	EventSessionEnded   EventType = "sessionEnded"
	EventEventsAdded    EventType = "eventsAdded"
	EventErrorAdded     EventType = "errorAdded"
)

// DomainEvent carries whichever fields are relevant to its Type; the
// rest are left zero.
type DomainEvent struct {
	Type      EventType
	SessionID string
	Session   types.Session
	Events    []types.Event
	Error     types.ErrorRecord
}

const subscriberBuffer = 256

// Subscribe returns a channel that receives every future domain event
// and an unsubscribe function. The ConnectionHub holds exactly one
// subscription for its lifetime.
func (r *Registry) Subscribe() (<-chan DomainEvent, func()) {
	ch := make(chan DomainEvent, subscriberBuffer)

	r.subMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subMu.Unlock()

	unsubscribe := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// publish fans a domain event out to every subscriber. Sends are
// non-blocking: a slow subscriber drops events rather than stalling
// session mutation.
func (r *Registry) publish(evt DomainEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
