package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"media-library/internal/logging"
	"media-library/internal/voice"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin policy is not useful here: the service fronts a
	// local library and carries no credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

// VoiceSearchResponse is one result frame on the voice search socket.
type VoiceSearchResponse struct {
	Text  string   `json:"text"`
	Final bool     `json:"final"`
	Items []string `json:"items"`
}

// VoiceSearch runs a voice query session over a websocket. The client
// streams transcript events; each one is searched immediately so
// results refine as the utterance grows. Only one session may hold
// the capture device at a time.
func (h *Handlers) VoiceSearch(w http.ResponseWriter, r *http.Request) {
	session, err := h.pipe.Voice().Acquire()
	if err != nil {
		writeJSONError(w, "Voice capture busy", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Release()
		logging.Warn("Voice search upgrade failed: %v", err)
		return
	}
	defer func() {
		session.Release()
		if err := conn.Close(); err != nil {
			logging.Debug("Voice search connection close: %v", err)
		}
	}()

	for {
		var ev voice.TranscriptEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("Voice search read: %v", err)
			}
			return
		}

		ids, err := session.Feed(ev)
		if err != nil {
			if errors.Is(err, voice.ErrSessionClosed) {
				return
			}
			logging.Warn("Voice search failed: %v", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}

		if err := conn.WriteJSON(VoiceSearchResponse{
			Text:  ev.Text,
			Final: ev.Final,
			Items: ids,
		}); err != nil {
			logging.Debug("Voice search write: %v", err)
			return
		}
		if ev.Final {
			return
		}
	}
}
