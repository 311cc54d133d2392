// Package wsconn is the ConnectionHub: it accepts tracker and viewer
// connections, classifies them, translates inbound wire messages into
// SessionRegistry calls, and fans Registry domain events back out over
// the wire.
package wsconn

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionrelay/sessionrelay/internal/registry"
	"github.com/sessionrelay/sessionrelay/internal/types"
)

const heartbeatTimeout = 60 * time.Second

// Registry is the subset of internal/registry.Registry the Hub needs.
type Registry interface {
	Create(sessionID, userID string, metadata types.Metadata, owner string) (assignedID string, reassigned bool)
	AppendEvents(sessionID string, events []types.Event) error
	AppendError(sessionID string, errRecord types.ErrorRecord) error
	End(sessionID string) error
	Heartbeat(sessionID string) error
	GetEvents(sessionID string, fromIndex, limit int) ([]types.Event, int, error)
	Snapshot(sessionID string) (types.Session, error)
	ActiveSessions() []types.ActiveSessionSummary
	Subscribe() (<-chan registry.DomainEvent, func())
}

// Hub tracks every live connection and is the sole writer of outbound
// frames derived from Registry domain events.
type Hub struct {
	registry          Registry
	heartbeatInterval time.Duration
	debug             bool

	mu      sync.Mutex
	clients map[*Client]struct{}

	unsubscribe func()
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewHub creates a Hub bound to reg and starts its domain-event
// consumer and heartbeat loop. debug gates verbose per-message logging
// behind LOG_LEVEL=debug.
func NewHub(reg Registry, heartbeatInterval time.Duration, debug bool) *Hub {
	h := &Hub{
		registry:          reg,
		heartbeatInterval: heartbeatInterval,
		debug:             debug,
		clients:           make(map[*Client]struct{}),
		stop:              make(chan struct{}),
	}

	events, unsub := reg.Subscribe()
	h.unsubscribe = unsub

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.consumeDomainEvents(events)
	}()
	go func() {
		defer h.wg.Done()
		h.runHeartbeat()
	}()

	return h
}

// AddConnection registers conn under role, starts its reader/writer
// goroutines, and (for viewers) immediately sends the current
// active_sessions snapshot.
func (h *Hub) AddConnection(conn wsConn, role Role) *Client {
	c := newClient(conn, role)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go h.readLoop(c)

	if role == RoleViewer {
		h.sendActiveSessions(c)
	}
	return c
}

func (h *Hub) readLoop(c *Client) {
	defer h.removeClient(c, "")

	c.conn.SetPongHandler(func(string) error {
		c.touchHeartbeat()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touchHeartbeat()

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(c, "malformed frame")
			continue
		}
		h.dispatch(c, env)
	}
}

// removeClient unregisters c, closes its send channel and transport, and
// if it was a tracker owning a live session, ends that session.
func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.closeSend()
	_ = c.conn.Close()

	if c.role == RoleTracker {
		if sessionID := c.getOwnedSession(); sessionID != "" {
			if err := h.registry.End(sessionID); err != nil {
				fmt.Printf("[%s] wsconn: end session %s on disconnect: %v\n",
					time.Now().Format(time.RFC3339), sessionID, err)
			}
		}
	}
}

// Shutdown stops the heartbeat and domain-event loops and closes every
// connection.
func (h *Hub) Shutdown() {
	close(h.stop)
	h.unsubscribe()
	h.wg.Wait()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.removeClient(c, "shutdown")
	}
}

func (h *Hub) sendError(c *Client, message string) {
	frame, err := encode(outError, errorOut{Message: message})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (h *Hub) sendActiveSessions(c *Client) {
	frame, err := encode(outActiveSessions, activeSessionsOut{Sessions: h.registry.ActiveSessions()})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// ConnectionCounts returns the number of currently connected viewer and
// tracker clients, used by the Frontend's /stats and /health endpoints.
func (h *Hub) ConnectionCounts() (viewers, trackers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.role == RoleViewer {
			viewers++
		} else {
			trackers++
		}
	}
	return viewers, trackers
}

// viewers returns a snapshot of currently connected viewer clients,
// taken under lock then released before any network I/O.
func (h *Hub) viewers() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Client
	for c := range h.clients {
		if c.role == RoleViewer {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) broadcastToViewers(frame []byte) {
	for _, c := range h.viewers() {
		if !c.enqueue(frame) {
			fmt.Printf("[%s] wsconn: dropping broadcast to a slow viewer, buffer full\n",
				time.Now().Format(time.RFC3339))
		}
	}
}

func (h *Hub) broadcastToWatchers(sessionID string, frame []byte) {
	for _, c := range h.viewers() {
		if c.isWatching(sessionID) {
			c.enqueue(frame)
		}
	}
}

// consumeDomainEvents translates Registry pub/sub events into outbound
// wire broadcasts. errorAdded is not handled here: the recorded
// passthrough types (error/javascript_error/promise_rejection) are
// already broadcast directly from dispatch at receipt time.
func (h *Hub) consumeDomainEvents(events <-chan registry.DomainEvent) {
	for evt := range events {
		switch evt.Type {
		case registry.EventSessionStarted:
			frame, err := encode(outSessionStarted, sessionStartedOut{
				SessionID: evt.SessionID,
				UserID:    evt.Session.UserID,
				Metadata:  evt.Session.Metadata,
			})
			if err == nil {
				h.broadcastToViewers(frame)
			}
		case registry.EventSessionEnded:
			frame, err := encode(outSessionEnded, sessionEndedOut{SessionID: evt.SessionID})
			if err == nil {
				h.broadcastToViewers(frame)
			}
		case registry.EventEventsAdded:
			frame, err := encode(outEventsBatch, eventsBatchOut{SessionID: evt.SessionID, Events: evt.Events})
			if err == nil {
				h.broadcastToWatchers(evt.SessionID, frame)
			}
		}
	}
}

func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.checkHeartbeats()
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) checkHeartbeats() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.heartbeatAge() > heartbeatTimeout {
			h.removeClient(c, "Heartbeat timeout")
			continue
		}
		_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
	}
}
