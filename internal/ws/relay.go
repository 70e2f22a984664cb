package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Relay delivers events to connected clients. Delivery is best effort:
// write failures close and drop the connection but are never surfaced to
// the code that triggered the push, because the message is already
// durable by the time a push is attempted.
type Relay struct {
	mu    sync.RWMutex
	conns map[string]*relayConn
	rooms map[int]map[string]bool
}

// relayConn serializes writes: gorilla/websocket allows one concurrent
// writer per connection, and a Notify can race a room broadcast.
type relayConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{
		conns: make(map[string]*relayConn),
		rooms: make(map[int]map[string]bool),
	}
}

// Register tracks a new connection under connID.
func (r *Relay) Register(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &relayConn{conn: conn}
}

// Unregister drops the connection and its room memberships.
func (r *Relay) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// JoinRoom adds the connection to a room. Unknown connections are
// ignored.
func (r *Relay) JoinRoom(connID string, roomID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[string]bool)
	}
	r.rooms[roomID][connID] = true
}

// Notify sends one event to one connection. Targeting an unregistered or
// stale connID is a no-op.
func (r *Relay) Notify(connID string, event string, message *models.Message) {
	r.mu.RLock()
	rc := r.conns[connID]
	r.mu.RUnlock()
	if rc == nil || rc.conn == nil {
		return
	}

	payload, _ := json.Marshal(models.SocketEvent{Type: event, Message: message})
	r.write(connID, rc, payload)
}

// BroadcastToRoom sends one event to every connection in the room.
func (r *Relay) BroadcastToRoom(roomID int, event string, data any) {
	r.mu.RLock()
	members := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		members = append(members, connID)
	}
	r.mu.RUnlock()

	payload, _ := json.Marshal(models.SocketEvent{Type: event, Data: data})
	for _, connID := range members {
		r.mu.RLock()
		rc := r.conns[connID]
		r.mu.RUnlock()
		if rc == nil || rc.conn == nil {
			continue
		}
		r.write(connID, rc, payload)
	}
}

func (r *Relay) write(connID string, rc *relayConn, payload []byte) {
	rc.writeMu.Lock()
	err := rc.conn.WriteMessage(websocket.TextMessage, payload)
	rc.writeMu.Unlock()
	if err != nil {
		log.Printf("websocket write error: %v", err)
		rc.conn.Close()
		r.Unregister(connID)
		observability.IncWSEvent("ws_error")
	}
}
