package presence

import "sync"

// Registry tracks which websocket connection a user currently holds.
// State is process-local and lost on restart; users read as absent until
// they reconnect. At most one connection is tracked per user, last
// register wins.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]string
	byConn map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int]string),
		byConn: make(map[string]int),
	}
}

// Register maps the user to connID, replacing any previous mapping for
// that user.
func (r *Registry) Register(userID int, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[userID]; ok {
		delete(r.byConn, prev)
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
}

// Unregister removes the mapping holding connID, whichever user owns it.
// Removing a stale connID is a no-op; it must not evict a newer
// connection the same user registered since.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
	}
}

// Lookup returns the user's active connection id, if any.
func (r *Registry) Lookup(userID int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// Online reports the number of users with an active connection.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
