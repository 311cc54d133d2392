package wsconn

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Role classifies a connection per the ?type= query parameter.
type Role string

const (
	RoleTracker Role = "tracker"
	RoleViewer  Role = "viewer"
)

// wsConn is the subset of *websocket.Conn the Hub depends on. Narrowing
// it to an interface lets dispatch and heartbeat logic be tested against
// a fake transport without a real network socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

const sendBuffer = 256

// Client holds per-connection state: role, the owned session (trackers
// only), the watched-session set (viewers only), and the outbound queue
// a dedicated writer goroutine drains so broadcasts and direct replies
// never interleave frames on the wire.
type Client struct {
	conn wsConn
	role Role
	send chan []byte

	mu            sync.Mutex
	ownedSession  string
	watched       map[string]struct{}
	lastHeartbeat time.Time
	closed        bool
}

func newClient(conn wsConn, role Role) *Client {
	return &Client{
		conn:          conn,
		role:          role,
		send:          make(chan []byte, sendBuffer),
		watched:       make(map[string]struct{}),
		lastHeartbeat: time.Now(),
	}
}

// enqueue queues a frame for the writer goroutine. Non-blocking: if the
// client's send buffer is full the frame is dropped and enqueue returns
// false rather than stalling the caller (typically a broadcast from the
// Hub's subscriber loop); the client stays connected.
// Guarded by c.mu against closeSend so a late broadcast can never race a
// send on an already-closed channel.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue, ending writeLoop. Safe to call
// more than once or concurrently with enqueue.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *Client) heartbeatAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastHeartbeat)
}

func (c *Client) setOwnedSession(sessionID string) {
	c.mu.Lock()
	c.ownedSession = sessionID
	c.mu.Unlock()
}

func (c *Client) getOwnedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownedSession
}

func (c *Client) watch(sessionID string) {
	c.mu.Lock()
	c.watched[sessionID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unwatch(sessionID string) {
	c.mu.Lock()
	delete(c.watched, sessionID)
	c.mu.Unlock()
}

func (c *Client) isWatching(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watched[sessionID]
	return ok
}

// writeLoop is the single writer goroutine for this connection: it
// drains send and is the only goroutine ever allowed to call
// conn.WriteMessage, so broadcasts and direct replies can never
// interleave bytes on the same socket.
func (c *Client) writeLoop() {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
