// Package registry holds the single in-memory source of truth for live
// sessions: the SessionRegistry. It owns all session mutation, emits
// domain events for the ConnectionHub to fan out over the wire, and
// enqueues durable writes onto the Batcher.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// Enqueuer is the subset of internal/batcher.Batcher the registry needs.
type Enqueuer interface {
	Enqueue(batch types.Batch)
}

// sessionState is the mutable record the registry keeps for one session.
// Its own mutex guards in-place mutation so a caller iterating the
// registry's outer map does not need to hold that lock while touching a
// session's buffers.
type sessionState struct {
	mu sync.Mutex

	sessionID string
	userID    string
	owner     string // opaque caller/connection token that created this session
	metadata  types.Metadata
	isActive  bool

	events []types.Event
	errors []types.ErrorRecord

	createdAt    int64
	updatedAt    int64
	lastActivity int64
}

func (s *sessionState) snapshot() types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Session{
		SessionID:    s.sessionID,
		UserID:       s.userID,
		Metadata:     s.metadata,
		IsActive:     s.isActive,
		Events:       append([]types.Event{}, s.events...),
		Errors:       append([]types.ErrorRecord{}, s.errors...),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		LastActivity: s.lastActivity,
	}
}

// Registry is the single logical owner of session mutation.
type Registry struct {
	batcher Enqueuer

	maxEventsPerSession int

	mu       sync.Mutex
	sessions map[string]*sessionState

	subMu       sync.Mutex
	subscribers map[chan DomainEvent]struct{}
}

// New creates a Registry. maxEventsPerSession is the MAX_EVENTS_PER_SESSION
// configuration value: once a session's in-memory buffer exceeds it,
// AppendEvents truncates to the most recent half.
func New(batcher Enqueuer, maxEventsPerSession int) *Registry {
	return &Registry{
		batcher:             batcher,
		maxEventsPerSession: maxEventsPerSession,
		sessions:            make(map[string]*sessionState),
		subscribers:         make(map[chan DomainEvent]struct{}),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Create establishes or re-activates a session for sessionID. owner
// identifies the calling connection. If an active session with this ID
// already exists under a different owner, a new ID is synthesized and
// returned with reassigned=true; the caller (the ConnectionHub) is
// expected to send session_assigned and use the returned ID for all
// subsequent calls.
//
// The existence check and the resulting insert/reactivation happen
// under a single hold of r.mu so two concurrent Creates naming the
// same new sessionID can't both observe "not found" and both win:
// one serializes behind the other, and the loser is the one that gets
// reassigned (or, for the same-id-same-owner case, simply reactivates
// the same sessionState the first call just created).
func (r *Registry) Create(sessionID, userID string, metadata types.Metadata, owner string) (assignedID string, reassigned bool) {
	now := nowMillis()

	r.mu.Lock()
	existing, ok := r.sessions[sessionID]

	var target *sessionState
	targetID := sessionID

	if !ok {
		target = newSessionState(sessionID, userID, metadata, owner, now)
		r.sessions[sessionID] = target
	} else {
		existing.mu.Lock()
		activeUnderOtherOwner := existing.isActive && existing.owner != owner
		if activeUnderOtherOwner {
			existing.mu.Unlock()
			targetID = fmt.Sprintf("%s-%s", sessionID, uuid.NewString()[:8])
			target = newSessionState(targetID, userID, metadata, owner, now)
			r.sessions[targetID] = target
			reassigned = true
		} else {
			// Same owner re-announcing, or a previously-ended session
			// being resurrected: reuse the id, just (re)activate it in
			// place.
			existing.userID = userID
			existing.owner = owner
			existing.metadata = metadata
			existing.isActive = true
			existing.createdAt = now
			existing.updatedAt = now
			existing.lastActivity = now
			existing.mu.Unlock()
			target = existing
		}
	}
	r.mu.Unlock()

	r.publish(DomainEvent{Type: EventSessionStarted, SessionID: targetID, Session: target.snapshot()})
	r.enqueueUpsert(target)

	return targetID, reassigned
}

func newSessionState(sessionID, userID string, metadata types.Metadata, owner string, now int64) *sessionState {
	return &sessionState{
		sessionID:    sessionID,
		userID:       userID,
		owner:        owner,
		metadata:     metadata,
		isActive:     true,
		createdAt:    now,
		updatedAt:    now,
		lastActivity: now,
	}
}

// AppendEvents appends events to an active session's buffer, truncating
// to the most recent half if the buffer would exceed
// maxEventsPerSession. Returns an error if the session is unknown or
// inactive.
func (r *Registry) AppendEvents(sessionID string, events []types.Event) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		return fmt.Errorf("session %s is not active", sessionID)
	}
	s.events = append(s.events, events...)
	if r.maxEventsPerSession > 0 && len(s.events) > r.maxEventsPerSession {
		half := len(s.events) / 2
		s.events = append([]types.Event{}, s.events[len(s.events)-half:]...)
	}
	s.lastActivity = nowMillis()
	s.updatedAt = s.lastActivity
	s.mu.Unlock()

	r.publish(DomainEvent{Type: EventEventsAdded, SessionID: sessionID, Events: events})
	r.enqueueEvents(sessionID, events)
	return nil
}

// AppendError records a single error against sessionID, whether or not
// the session is currently active (errors can arrive after session_end
// in a disconnect race).
func (r *Registry) AppendError(sessionID string, errRecord types.ErrorRecord) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.errors = append(s.errors, errRecord)
	s.lastActivity = nowMillis()
	s.mu.Unlock()

	r.publish(DomainEvent{Type: EventErrorAdded, SessionID: sessionID, Error: errRecord})
	r.enqueueError(sessionID, errRecord)
	return nil
}

// End marks sessionID inactive, emits sessionEnded, and enqueues a final
// metadata-only Batch so the Store reflects is_active=false.
func (r *Registry) End(sessionID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.isActive = false
	now := nowMillis()
	s.updatedAt = now
	s.lastActivity = now
	s.mu.Unlock()

	r.publish(DomainEvent{Type: EventSessionEnded, SessionID: sessionID, Session: s.snapshot()})
	r.enqueueUpsert(s)
	return nil
}

// Heartbeat refreshes lastActivity without emitting a domain event.
func (r *Registry) Heartbeat(sessionID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastActivity = nowMillis()
	s.mu.Unlock()
	return nil
}

// GetEvents returns a slice of the in-memory buffer for sessionID.
// fromIndex is a current-buffer index, not a stream index: once the
// buffer has been trimmed by AppendEvents, index 0 no longer means
// "first event ever recorded." Historical reads beyond the buffer must
// go through the Store.
func (r *Registry) GetEvents(sessionID string, fromIndex, limit int) (events []types.Event, total int, err error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total = len(s.events)
	if fromIndex < 0 {
		fromIndex = 0
	}
	if fromIndex >= total {
		return nil, total, nil
	}
	end := fromIndex + limit
	if limit <= 0 || end > total {
		end = total
	}
	return append([]types.Event{}, s.events[fromIndex:end]...), total, nil
}

// Snapshot returns a copy of the current state for sessionID.
func (r *Registry) Snapshot(sessionID string) (types.Session, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return types.Session{}, err
	}
	return s.snapshot(), nil
}

// ActiveSessions returns summaries of all currently active sessions,
// matching the shape internal/store returns for GET /sessions/active.
func (r *Registry) ActiveSessions() []types.ActiveSessionSummary {
	r.mu.Lock()
	all := make([]*sessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	var out []types.ActiveSessionSummary
	for _, s := range all {
		s.mu.Lock()
		if s.isActive {
			out = append(out, types.ActiveSessionSummary{
				SessionID:  s.sessionID,
				UserID:     s.userID,
				Metadata:   s.metadata,
				IsActive:   s.isActive,
				EventCount: len(s.events),
				ErrorCount: len(s.errors),
				UpdatedAt:  s.updatedAt,
			})
		}
		s.mu.Unlock()
	}
	return out
}

func (r *Registry) get(sessionID string) (*sessionState, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	return s, nil
}

func (r *Registry) enqueueUpsert(s *sessionState) {
	snap := s.snapshot()
	r.batcher.Enqueue(types.Batch{
		SessionID:      snap.SessionID,
		UserID:         snap.UserID,
		Metadata:       snap.Metadata,
		IsActive:       snap.IsActive,
		UpsertMetadata: true,
	})
}

func (r *Registry) enqueueEvents(sessionID string, events []types.Event) {
	r.batcher.Enqueue(types.Batch{SessionID: sessionID, Events: events})
}

func (r *Registry) enqueueError(sessionID string, errRecord types.ErrorRecord) {
	r.batcher.Enqueue(types.Batch{SessionID: sessionID, Errors: []types.ErrorRecord{errRecord}})
}
