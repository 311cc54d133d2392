// Package types holds the data shapes shared across the broker: the
// authoritative Session record, opaque Event/Error payloads, and the
// transient Batch unit handed from the SessionRegistry to the Batcher.
package types

import "encoding/json"

// Metadata is the opaque per-session descriptor reported by a tracker on
// session_start. The broker never interprets its fields beyond passing
// them through to the Store and to viewers.
type Metadata struct {
	URL          string          `json:"url"`
	UserAgent    string          `json:"userAgent"`
	Viewport     json.RawMessage `json:"viewport,omitempty"`
	StartTime    float64         `json:"startTime,omitempty"`
	LastActivity float64         `json:"lastActivity,omitempty"`
	Referrer     string          `json:"referrer,omitempty"`
	TimeZone     string          `json:"timeZone,omitempty"`
}

// Event is an opaque record produced by a tracker. The broker preserves
// order and attaches the owning sessionId when persisting, but never
// parses the payload itself.
type Event = json.RawMessage

// ErrorRecord is an opaque error payload produced by a tracker (error,
// javascript_error, or promise_rejection messages).
type ErrorRecord = json.RawMessage

// Session is the authoritative in-memory record owned exclusively by the
// SessionRegistry. sessionId is unique across the broker's lifetime.
type Session struct {
	SessionID string
	UserID    string
	Metadata  Metadata
	IsActive  bool
	Events    []Event
	Errors    []ErrorRecord
	CreatedAt int64 // unix millis
	UpdatedAt int64 // unix millis

	// lastActivity is monotonic non-decreasing once the session exists.
	LastActivity int64
}

// Batch is a transient, coalesced write unit flushed atomically to the
// Store within a single transaction. A single Batch targets exactly one
// sessionId; once enqueued to the Batcher, the producer relinquishes
// mutation of it.
type Batch struct {
	SessionID string
	UserID    string
	Metadata  Metadata
	IsActive  bool
	Events    []Event       // newly appended events only, may be empty
	Errors    []ErrorRecord // newly appended errors only, may be empty

	// UpsertMetadata is true when the session row itself (metadata,
	// is_active, updated_at) should be upserted as part of this batch.
	// AppendEvents-only batches that don't change metadata skip the
	// upsert by leaving this false; the Registry sets it on the batches
	// it enqueues for Create and End, and the Store upserts only when it
	// is true.
	UpsertMetadata bool
}

// ActiveSessionSummary is the per-session shape returned by
// GetActiveSessions / GetAllSessions and the active_sessions wire
// message.
type ActiveSessionSummary struct {
	SessionID  string
	UserID     string
	Metadata   Metadata
	IsActive   bool
	EventCount int
	ErrorCount int
	UpdatedAt  int64
}

// Stats is the aggregate shape returned by Store.GetStats.
type Stats struct {
	TotalSessions  int
	ActiveSessions int
	TotalEvents    int
}
