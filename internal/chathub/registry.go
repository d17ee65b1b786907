package chathub

import "sync"

// Registry tracks every live connection and which user owns it. It is the
// single source of truth for connection lifetime: a connection id found
// anywhere else in the hub must also be present here.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client            // connection id -> client
	byUser  map[string]map[string]Client // user id -> connection id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
		byUser:  make(map[string]map[string]Client),
	}
}

// Add binds an authenticated connection to its user. Idempotent per
// connection id.
func (r *Registry) Add(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.GetID()]; ok {
		return
	}
	r.clients[c.GetID()] = c

	conns, ok := r.byUser[c.GetUserID()]
	if !ok {
		conns = make(map[string]Client)
		r.byUser[c.GetUserID()] = conns
	}
	conns[c.GetID()] = c
}

// Remove drops a connection. It reports the removed client and whether it
// was the last connection held by its user, so the caller can emit the
// presence-offline side effect.
func (r *Registry) Remove(connID string) (c Client, lastOfUser bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok = r.clients[connID]
	if !ok {
		return nil, false, false
	}
	delete(r.clients, connID)

	conns := r.byUser[c.GetUserID()]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, c.GetUserID())
		lastOfUser = true
	}
	return c, lastOfUser, true
}

// Get returns the client for a connection id.
func (r *Registry) Get(connID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// ConnectionsFor returns every live connection of a user, one per device.
func (r *Registry) ConnectionsFor(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// All snapshots every registered client, used at shutdown.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
