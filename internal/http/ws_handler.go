package httpx

import (
	"net/http"

	"github.com/splax/userdesk/internal/service/user"
	"github.com/splax/userdesk/internal/ws"
)

// handleUsersWS streams user change events until the client disconnects.
func (r *Router) handleUsersWS(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(user.Topic, client)
	go func() {
		defer func() {
			r.hub.Unregister(user.Topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
