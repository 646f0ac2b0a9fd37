package hub

import (
	"encoding/json"
	"sync"
)

// EventBalanceChanged tells a client its balance moved on the server. It never
// carries the balance itself; clients re-read it.
const EventBalanceChanged = "balance-changed"

type Event struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	UserID int64
	Writer Writer
}

// Hub fans messages out to every open connection of a user.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[int64]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
	}
}

// Connections reports how many connections a user has open.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func (h *Hub) BalanceChanged(userID int64) {
	msg, _ := json.Marshal(Event{Type: EventBalanceChanged, UserID: userID})
	h.Broadcast(userID, msg)
}

func (h *Hub) Broadcast(userID int64, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
