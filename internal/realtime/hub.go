package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Emitter delivers an event to every active connection of one user.
// Injected into services so nothing depends on a process-wide singleton.
type Emitter interface {
	Emit(userID, event string, payload any)
}

// Event is the wire frame pushed to clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps per-user connection sets and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve upgrades the request and pumps events to the connection until it
// closes. The caller has already authenticated userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register(userID, c)

	go c.writePump()
	go func() {
		defer h.unregister(userID, c)
		for {
			// Clients never send application data; reading only detects
			// disconnects.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}

// Emit sends the event to every connection of the user. Slow consumers are
// skipped rather than blocking the caller.
func (h *Hub) Emit(userID, event string, payload any) {
	frame, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping event for slow client",
				zap.String("user_id", userID),
				zap.String("event", event))
		}
	}
}

func (h *Hub) register(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.clients[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	close(c.send)
	_ = c.conn.Close()
}

func (c *client) writePump() {
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
