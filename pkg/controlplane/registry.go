package controlplane

import (
	"sync"

	"github.com/chirouter/chirouter/pkg/dataplane"
)

// Registry is the process-level router-id -> Router table: built exactly
// once by the configuration handshake and never mutated after EndConfig.
// A mutex-guarded map keyed by an identifier known only at negotiation
// time, the same shape as a neighbor table built from a discovery
// handshake.
type Registry struct {
	mu      sync.RWMutex
	routers map[uint8]*dataplane.Router
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routers: make(map[uint8]*dataplane.Router)}
}

func (r *Registry) set(rid uint8, router *dataplane.Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[rid] = router
}

// Get returns the router configured with the given id.
func (r *Registry) Get(rid uint8) (*dataplane.Router, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	router, ok := r.routers[rid]
	return router, ok
}

// All returns a snapshot copy of every configured router, keyed by id.
func (r *Registry) All() map[uint8]*dataplane.Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint8]*dataplane.Router, len(r.routers))
	for k, v := range r.routers {
		out[k] = v
	}
	return out
}

// Len reports how many routers are configured.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routers)
}
