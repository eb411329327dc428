// Package server implements the connection registry that maps live
// WebSocket connections to authenticated user ids.
package server

import "sync"

// Registry is the bidirectional mapping between open connections and the
// user ids they authenticate as. All mutations serialize on an internal
// mutex; eviction is idempotent.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]string
	byUser  map[string]map[*Client]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]string),
		byUser:  make(map[string]map[*Client]struct{}),
	}
}

// Admit records the connection under userID, replacing any prior mapping
// for the same connection.
func (r *Registry) Admit(c *Client, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clients[c]; ok {
		r.dropUserLocked(c, prev)
	}
	c.closed = false
	r.clients[c] = userID
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.byUser[userID] = set
	}
	set[c] = struct{}{}
}

// Evict removes the connection and returns the user id it was admitted
// under, whether it was present, and whether it was that user's last
// live connection. Evicting an absent connection is a no-op.
func (r *Registry) Evict(c *Client) (userID string, evicted bool, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.clients[c]
	if !ok {
		return "", false, false
	}
	delete(r.clients, c)
	c.closed = true
	r.dropUserLocked(c, userID)
	_, stillConnected := r.byUser[userID]
	return userID, true, !stillConnected
}

func (r *Registry) dropUserLocked(c *Client, userID string) {
	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// Targets returns a snapshot of all live connections.
func (r *Registry) Targets() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// UserOf returns the user id the connection was admitted under.
func (r *Registry) UserOf(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.clients[c]
	return id, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// TrySend queues payload on the connection's send channel without
// blocking. It holds the registry lock across the send so a concurrent
// eviction cannot close the channel mid-send; a connection that is gone,
// closing, or backed up reports false.
func (r *Registry) TrySend(c *Client, payload []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.clients[c]; !ok || c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}
