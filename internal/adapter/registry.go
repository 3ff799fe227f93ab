package adapter

import (
	"sort"
	"sync"
)

// Registry maps local adapter identifiers (the non-URL values in a
// platform's capability map) to implementations.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds id to a. Registering the same id twice replaces the
// earlier adapter.
func (r *Registry) Register(id string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = a
}

// Lookup returns the adapter bound to id.
func (r *Registry) Lookup(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs lists registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
