package handlers

import (
	"net/http"

	"media-library/internal/logging"
)

// Events streams pipeline lifecycle events (sync complete, batch complete,
// collection updates, index rebuilds) to the client over a websocket.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Events: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.pipe.Events()
	defer unsubscribe()

	// Drain client frames so pings and close messages are handled; the
	// reader unblocks us when the peer goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
