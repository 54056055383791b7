package api

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"progitek/server/internal/services"
)

// WSController serves the realtime notification socket.
type WSController struct {
	hub           *Hub
	notifications *services.NotificationService
	upgrader      websocket.Upgrader
}

// NewWSController creates a WSController accepting browser handshakes from
// the same origins as CORS.
func NewWSController(hub *Hub, notifications *services.NotificationService, origins string) *WSController {
	return &WSController{
		hub:           hub,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(parseOrigins(origins)),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS upgrades the request and keeps the socket until the client leaves.
// GET /api/v1/ws
func (wc *WSController) ServeWS(c *gin.Context) {
	actor := actorFrom(c)

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := wc.hub.AddClient(actor.UserID, conn)
	log.Printf("🔌 WebSocket connected: user %d. Open sockets: %d", actor.UserID, wc.hub.GetClientsCount())
	defer func() {
		wc.hub.RemoveClient(client)
		log.Printf("🔌 WebSocket closed: user %d. Open sockets: %d", actor.UserID, wc.hub.GetClientsCount())
	}()

	// unread counter first so the badge is right without a REST call
	if unread, err := wc.notifications.UnreadCount(c.Request.Context(), actor.UserID); err == nil {
		if msg, err := json.Marshal(services.PushMessage{Type: "unread_count", Data: unread}); err == nil {
			wc.hub.SendToClient(client, msg)
		}
	}

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket error: %v", err)
			}
			break
		}
	}
}
