package handlers

import (
	"net/http"

	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/comm"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// CardFeed upgrades to a websocket that receives the caller's own card
// events until either side closes it.
func (h *Handler) CardFeed(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.ws.StoreConnection(socketId, caller.Hex(), conn)
	log.Infof("New feed connection %s for user %s", socketId, caller.Hex())

	if err := h.ws.Send(socketId, comm.FeedMessage{Type: "connected", SocketId: socketId}); err != nil {
		log.Warnf("feed greeting to %s failed: %s", socketId, err)
	}

	go h.handleConnection(conn, socketId)
}

// handleConnection drains client frames so close and ping control frames
// are processed. The feed is one way, so payloads are discarded.
func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		log.Infof("Closing feed connection: %s", socketId)
		h.ws.RemoveConnection(socketId)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("feed socket %s closed unexpectedly: %v", socketId, err)
			}
			return
		}
	}
}
