package server

import (
	"net/http"

	"github.com/ayusman/handwheel/internal/hub"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Inbound frames are discarded; this bounds how much a client can make us buffer.
const maxInboundFrame = 4096

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StreamHandler upgrades requests to websocket and subscribes them to the hub.
type StreamHandler struct {
	hub *hub.Hub
	log *zap.Logger
}

// NewStreamHandler creates a StreamHandler for h.
func NewStreamHandler(h *hub.Hub, log *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: h, log: log}
}

// ServeHTTP handles WebSocket upgrade requests. The connection is owned by the hub once
// subscribed; this goroutine only reads until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sub := hub.NewWebSocketSubscriber(conn, h.hub.Config().WriteTimeout)
	id, err := h.hub.Subscribe(sub)
	if err != nil {
		sub.Close()
		return
	}
	defer h.hub.Unsubscribe(id)

	conn.SetReadLimit(maxInboundFrame)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
