package websocket

import (
	"log"
	"sync"
)

// Registry tracks live connections and their room memberships. Rooms scope
// the poll broadcasts: room id = poll id. Pure connection bookkeeping, no
// poll logic.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection         // handle -> connection
	rooms       map[string]map[string]struct{} // room id -> set of handles
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]struct{}),
	}
}

// Register adds a connection for room lookups.
func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
}

// Unregister removes a connection and its room memberships. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := conn.ID()
	delete(r.connections, handle)
	for roomID, members := range r.rooms {
		delete(members, handle)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// JoinRoom adds a registered connection handle to a room. Joining with an
// unknown handle is a no-op; the connection already went away.
func (r *Registry) JoinRoom(roomID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[handle]; !exists {
		return
	}
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[handle] = struct{}{}
}

// Broadcast delivers a message to every connection in a room. Delivery
// failures are logged and skipped; one slow client must not block the rest.
func (r *Registry) Broadcast(roomID string, v interface{}) {
	r.mu.RLock()
	var targets []*Connection
	for handle := range r.rooms[roomID] {
		if conn, exists := r.connections[handle]; exists {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Failed to deliver broadcast to %s: %v", conn.ID(), err)
		}
	}
}

// Get returns a connection by handle.
func (r *Registry) Get(handle string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[handle]
	return conn, exists
}

// Stats returns connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}
