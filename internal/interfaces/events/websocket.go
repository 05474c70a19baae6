package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
	wsSubBuffer = 32
)

// WebSocketHandler upgrades GET /ws/events connections and streams every
// event published on Bus as JSON text frames, one event per message.
type WebSocketHandler struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

// NewWebSocketHandler builds a handler fanning bus events out to
// websocket clients. CheckOrigin accepts every origin, matching the
// reference hub — this endpoint carries no write capability, only a
// read-only event stream, so CSRF-style origin restriction isn't load
// bearing here.
func NewWebSocketHandler(bus *Bus) *WebSocketHandler {
	return &WebSocketHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("events: websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bus.Subscribe(wsSubBuffer)
	defer unsubscribe()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Read loop: we never expect client messages, but it's required to
	// detect disconnects and drive the pong handler.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
