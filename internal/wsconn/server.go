package wsconn

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Session replay viewers and trackers are expected to be served from
	// an operator-controlled origin; this mirrors the permissive default
	// most embedded dashboards use rather than a same-origin browser app.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket connection and registers
// it with the Hub under the role named by the ?type= query parameter
// (tracker|viewer, default tracker).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := RoleTracker
	if r.URL.Query().Get("type") == "viewer" {
		role = RoleViewer
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.AddConnection(conn, role)
}
