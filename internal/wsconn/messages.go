package wsconn

import (
	"encoding/json"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// envelope is the wire shape every frame uses: {"type": ..., "data": ...}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: msgType, Data: raw})
}

// Inbound payload shapes.

type sessionStartIn struct {
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	URL       string          `json:"url"`
	UserAgent string          `json:"userAgent"`
	Viewport  json.RawMessage `json:"viewport"`
	StartTime float64         `json:"startTime"`
	Referrer  string          `json:"referrer"`
	TimeZone  string          `json:"timeZone"`
}

type eventsBatchIn struct {
	Events []types.Event `json:"events"`
}

type sessionEndIn struct {
	SessionID string `json:"sessionId"`
}

type heartbeatIn struct {
	SessionID string `json:"sessionId"`
}

type viewerJoinIn struct {
	SessionID string `json:"sessionId"`
}

type viewerLeaveIn struct {
	SessionID string `json:"sessionId"`
}

type getSessionEventsIn struct {
	SessionID string `json:"sessionId"`
	FromIndex int    `json:"fromIndex"`
	Limit     int    `json:"limit"`
}

// Outbound payload shapes.

type sessionAssignedOut struct {
	SessionID string `json:"sessionId"`
}

type activeSessionsOut struct {
	Sessions []types.ActiveSessionSummary `json:"sessions"`
}

type sessionStartedOut struct {
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Metadata  types.Metadata `json:"metadata"`
}

type sessionEndedOut struct {
	SessionID string `json:"sessionId"`
}

type sessionJoinedOut struct {
	SessionID   string         `json:"sessionId"`
	Events      []types.Event  `json:"events"`
	Metadata    types.Metadata `json:"metadata"`
	TotalEvents int            `json:"totalEvents"`
	IsActive    bool           `json:"isActive"`
}

type sessionEventsOut struct {
	SessionID   string        `json:"sessionId"`
	Events      []types.Event `json:"events"`
	FromIndex   int           `json:"fromIndex"`
	TotalEvents int           `json:"totalEvents"`
	HasMore     bool          `json:"hasMore"`
}

type eventsBatchOut struct {
	SessionID string        `json:"sessionId"`
	Events    []types.Event `json:"events"`
}

type passthroughOut struct {
	SessionID string          `json:"sessionId"`
	Events    json.RawMessage `json:"events,omitempty"`
}

type errorOut struct {
	Message string `json:"message"`
}

// Inbound message type names.
const (
	msgSessionStart      = "session_start"
	msgEventsBatch       = "events_batch"
	msgSessionEnd        = "session_end"
	msgHeartbeat         = "heartbeat"
	msgError             = "error"
	msgJavascriptError   = "javascript_error"
	msgPromiseRejection  = "promise_rejection"
	msgVisibilityChange  = "visibility_change"
	msgGetActiveSessions = "get_active_sessions"
	msgViewerJoinSession = "viewer_join_session"
	msgViewerLeaveSess   = "viewer_leave_session"
	msgGetSessionEvents  = "get_session_events"
)

// Outbound message type names.
const (
	outSessionAssigned  = "session_assigned"
	outActiveSessions   = "active_sessions"
	outSessionStarted   = "session_started"
	outSessionEnded     = "session_ended"
	outSessionJoined    = "session_joined"
	outSessionEvents    = "session_events"
	outEventsBatch      = "events_batch"
	outVisibilityChange = "visibility_change"
	outJavascriptError  = "javascript_error"
	outPromiseRejection = "promise_rejection"
	outTrackerError     = "tracker_error"
	outError            = "error"
)

// recordedPassthroughTypes are the inbound tracker message types that are
// both broadcast to watchers verbatim and recorded as session errors.
var recordedPassthroughTypes = map[string]struct{}{
	msgError:            {},
	msgJavascriptError:  {},
	msgPromiseRejection: {},
}

// broadcastOnlyPassthroughTypes are forwarded to watchers but not recorded.
var broadcastOnlyPassthroughTypes = map[string]struct{}{
	msgVisibilityChange: {},
}
