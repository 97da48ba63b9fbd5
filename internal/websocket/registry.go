package websocket

import "sync"

// ClientRegistry tracks open WebSocket connections so they can be closed
// together on shutdown.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[*Connection]struct{}
}

// NewClientRegistry creates a new client registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[*Connection]struct{}),
	}
}

// Add adds a connection to the registry.
func (r *ClientRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[conn] = struct{}{}
}

// Remove removes a connection from the registry.
func (r *ClientRegistry) Remove(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, conn)
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes all client connections.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn := range r.clients {
		_ = conn.Close()
	}
	r.clients = make(map[*Connection]struct{})
}
