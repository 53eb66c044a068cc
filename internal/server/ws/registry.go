package ws

import "sync"

// Registry is the set of open subscriber connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Add registers c. Adding an id twice is a no-op.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.id]; ok {
		return
	}
	r.conns[c.id] = c
	r.order = append(r.order, c.id)
}

// Remove unregisters c and completes its lifecycle. It reports whether c was
// registered.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	_, ok := r.conns[c.id]
	if ok {
		delete(r.conns, c.id)
		for i, id := range r.order {
			if id == c.id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	c.markClosed()
	return ok
}

// ForEach visits the connections registered when the call started, in
// registration order. The set is copied first, so visit may call Add or
// Remove.
func (r *Registry) ForEach(visit func(*Conn)) {
	for _, c := range r.List() {
		visit(c)
	}
}

// List returns a copy of the registered connections.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id])
	}
	return out
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
