package wsconn

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionrelay/sessionrelay/internal/types"
)

// dispatch routes one inbound envelope to the handler appropriate to
// c's role. Unknown types are logged and dropped; payload parse errors
// get a best-effort error reply and otherwise leave state untouched.
func (h *Hub) dispatch(c *Client, env envelope) {
	if _, recorded := recordedPassthroughTypes[env.Type]; recorded {
		h.handleRecordedPassthrough(c, env)
		return
	}
	if _, broadcastOnly := broadcastOnlyPassthroughTypes[env.Type]; broadcastOnly {
		h.handleBroadcastOnlyPassthrough(c, env)
		return
	}

	switch c.role {
	case RoleTracker:
		h.dispatchTracker(c, env)
	case RoleViewer:
		h.dispatchViewer(c, env)
	}
}

func (h *Hub) dispatchTracker(c *Client, env envelope) {
	switch env.Type {
	case msgSessionStart:
		h.handleSessionStart(c, env)
	case msgEventsBatch:
		h.handleEventsBatch(c, env)
	case msgSessionEnd:
		h.handleSessionEnd(c, env)
	case msgHeartbeat:
		h.handleTrackerHeartbeat(c, env)
	default:
		h.logUnknown(c, env.Type)
	}
}

func (h *Hub) dispatchViewer(c *Client, env envelope) {
	switch env.Type {
	case msgGetActiveSessions:
		h.sendActiveSessions(c)
	case msgViewerJoinSession:
		h.handleViewerJoin(c, env)
	case msgViewerLeaveSess:
		h.handleViewerLeave(c, env)
	case msgGetSessionEvents:
		h.handleGetSessionEvents(c, env)
	case msgHeartbeat:
		// liveness only; touchHeartbeat already ran in readLoop.
	default:
		h.logUnknown(c, env.Type)
	}
}

func (h *Hub) logUnknown(c *Client, msgType string) {
	if !h.debug {
		return
	}
	fmt.Printf("[%s] wsconn: dropping unknown message type %q from a %s connection\n",
		time.Now().Format(time.RFC3339), msgType, c.role)
}

func (h *Hub) handleSessionStart(c *Client, env envelope) {
	var in sessionStartIn
	if err := json.Unmarshal(env.Data, &in); err != nil {
		h.sendError(c, "malformed session_start")
		return
	}

	metadata := types.Metadata{
		URL:          in.URL,
		UserAgent:    in.UserAgent,
		Viewport:     in.Viewport,
		StartTime:    in.StartTime,
		LastActivity: in.StartTime,
		Referrer:     in.Referrer,
		TimeZone:     in.TimeZone,
	}

	owner := fmt.Sprintf("%p", c)
	assignedID, reassigned := h.registry.Create(in.SessionID, in.UserID, metadata, owner)
	c.setOwnedSession(assignedID)

	if reassigned {
		frame, err := encode(outSessionAssigned, sessionAssignedOut{SessionID: assignedID})
		if err == nil {
			c.enqueue(frame)
		}
	}
}

func (h *Hub) handleEventsBatch(c *Client, env envelope) {
	sessionID := c.getOwnedSession()
	if sessionID == "" {
		h.sendError(c, "no active session for events_batch")
		return
	}

	var in eventsBatchIn
	if err := json.Unmarshal(env.Data, &in); err != nil {
		h.sendError(c, "malformed events_batch")
		return
	}

	if err := h.registry.AppendEvents(sessionID, in.Events); err != nil {
		h.sendError(c, err.Error())
	}
}

func (h *Hub) handleSessionEnd(c *Client, env envelope) {
	var in sessionEndIn
	sessionID := c.getOwnedSession()
	if err := json.Unmarshal(env.Data, &in); err == nil && in.SessionID != "" {
		sessionID = in.SessionID
	}
	if sessionID == "" {
		h.sendError(c, "no active session for session_end")
		return
	}
	if err := h.registry.End(sessionID); err != nil {
		h.sendError(c, err.Error())
		return
	}
	c.setOwnedSession("")
}

func (h *Hub) handleTrackerHeartbeat(c *Client, env envelope) {
	sessionID := c.getOwnedSession()
	if sessionID == "" {
		return
	}
	_ = h.registry.Heartbeat(sessionID)
}

func (h *Hub) handleViewerJoin(c *Client, env envelope) {
	var in viewerJoinIn
	if err := json.Unmarshal(env.Data, &in); err != nil || in.SessionID == "" {
		h.sendError(c, "malformed viewer_join_session")
		return
	}

	snap, err := h.registry.Snapshot(in.SessionID)
	if err != nil {
		h.sendError(c, "unknown session "+in.SessionID)
		return
	}

	c.watch(in.SessionID)

	frame, err := encode(outSessionJoined, sessionJoinedOut{
		SessionID:   in.SessionID,
		Events:      []types.Event{},
		Metadata:    snap.Metadata,
		TotalEvents: len(snap.Events),
		IsActive:    snap.IsActive,
	})
	if err == nil {
		c.enqueue(frame)
	}
}

func (h *Hub) handleViewerLeave(c *Client, env envelope) {
	var in viewerLeaveIn
	if err := json.Unmarshal(env.Data, &in); err != nil || in.SessionID == "" {
		h.sendError(c, "malformed viewer_leave_session")
		return
	}
	c.unwatch(in.SessionID)
}

func (h *Hub) handleGetSessionEvents(c *Client, env envelope) {
	var in getSessionEventsIn
	if err := json.Unmarshal(env.Data, &in); err != nil || in.SessionID == "" {
		h.sendError(c, "malformed get_session_events")
		return
	}

	events, total, err := h.registry.GetEvents(in.SessionID, in.FromIndex, in.Limit)
	if err != nil {
		h.sendError(c, "unknown session "+in.SessionID)
		return
	}

	hasMore := in.FromIndex+len(events) < total
	frame, err := encode(outSessionEvents, sessionEventsOut{
		SessionID:   in.SessionID,
		Events:      events,
		FromIndex:   in.FromIndex,
		TotalEvents: total,
		HasMore:     hasMore,
	})
	if err == nil {
		c.enqueue(frame)
	}
}

// handleRecordedPassthrough handles error/javascript_error/promise_rejection:
// broadcast verbatim to watchers of the owning session and also record
// the error against that session.
func (h *Hub) handleRecordedPassthrough(c *Client, env envelope) {
	sessionID := c.getOwnedSession()
	if sessionID == "" {
		return
	}

	frame, err := encode(outboundNameFor(env.Type), passthroughOut{SessionID: sessionID, Events: env.Data})
	if err == nil {
		h.broadcastToWatchers(sessionID, frame)
	}

	_ = h.registry.AppendError(sessionID, types.ErrorRecord(env.Data))
}

// handleBroadcastOnlyPassthrough handles visibility_change: broadcast
// verbatim to watchers, no recording.
func (h *Hub) handleBroadcastOnlyPassthrough(c *Client, env envelope) {
	sessionID := c.getOwnedSession()
	if sessionID == "" {
		return
	}
	frame, err := encode(outboundNameFor(env.Type), passthroughOut{SessionID: sessionID, Events: env.Data})
	if err == nil {
		h.broadcastToWatchers(sessionID, frame)
	}
}

// outboundNameFor maps an inbound passthrough type to its broadcast type.
// msgError maps to outTrackerError rather than outError: outError is
// reserved for the server's own {message}-shaped error frames, and
// reusing it here would let a tracker's reported error be mistaken for
// one the server raised against the viewer's own connection.
func outboundNameFor(inboundType string) string {
	switch inboundType {
	case msgJavascriptError:
		return outJavascriptError
	case msgPromiseRejection:
		return outPromiseRejection
	case msgVisibilityChange:
		return outVisibilityChange
	case msgError:
		return outTrackerError
	default:
		return outTrackerError
	}
}
