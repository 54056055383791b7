package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"progitek/server/internal/metrics"
	"progitek/server/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// wsClient is one open socket of a user. Only writePump writes to conn.
type wsClient struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks the notification sockets of this instance, grouped by user.
type Hub struct {
	clients   map[uint]map[*wsClient]struct{}
	broadcast chan []byte
	mutex     sync.RWMutex
}

// NewHub creates an empty hub. Run must be started for broadcasts.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[uint]map[*wsClient]struct{}),
		broadcast: make(chan []byte, 256),
	}
}

// Run distributes broadcast messages until ctx is cancelled. Broadcasts
// still queued at that point are delivered before every socket is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-h.broadcast:
					h.fanout(msg)
				default:
					h.closeAll()
					return
				}
			}
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) fanout(msg []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for _, set := range h.clients {
		for client := range set {
			h.enqueue(client, msg)
		}
	}
}

// AddClient registers conn for userID and starts its writer.
func (h *Hub) AddClient(userID uint, conn *websocket.Conn) *wsClient {
	client := &wsClient{userID: userID, conn: conn, send: make(chan []byte, clientSendSize)}

	h.mutex.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[userID] = set
	}
	set[client] = struct{}{}
	h.mutex.Unlock()

	metrics.WebsocketClients.Inc()
	go client.writePump()
	return client
}

// RemoveClient unregisters client and closes its socket.
func (h *Hub) RemoveClient(client *wsClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *wsClient) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)
	metrics.WebsocketClients.Dec()
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, set := range h.clients {
		for client := range set {
			h.removeLocked(client)
		}
	}
}

// SendToUser queues message on every socket of userID. A full queue drops
// the message for that socket.
func (h *Hub) SendToUser(userID uint, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients[userID] {
		h.enqueue(client, message)
	}
}

// SendToClient queues message on one socket only.
func (h *Hub) SendToClient(client *wsClient, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if _, ok := h.clients[client.userID][client]; ok {
		h.enqueue(client, message)
	}
}

func (h *Hub) enqueue(client *wsClient, message []byte) {
	select {
	case client.send <- message:
	default:
		log.Printf("⚠️ WebSocket queue full for user %d, message dropped", client.userID)
	}
}

// BroadcastMessage sends message to every connected socket without blocking.
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// AnnounceShutdown tells every connected client that this instance is
// going away so the frontend can reconnect elsewhere.
func (h *Hub) AnnounceShutdown() {
	msg, err := json.Marshal(services.PushMessage{Type: "server_shutdown", Data: "Le serveur redémarre, reconnexion en cours"})
	if err != nil {
		return
	}
	h.BroadcastMessage(msg)
}

// GetClientsCount returns the number of open sockets.
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserClientsCount returns the number of open sockets of userID.
func (h *Hub) UserClientsCount(userID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[userID])
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
