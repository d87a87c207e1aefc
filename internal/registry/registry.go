// Package registry is the in-memory index of live sessions. It mirrors what
// the session store holds and is only mutated after storage succeeded.
package registry

import (
	"sync"

	"ares/go-client/pkg/models"
)

type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]models.IdentityEntry
}

func New() *Registry {
	return &Registry{entries: make(map[string]models.IdentityEntry)}
}

// Load replaces the contents with entries, keeping their order.
func (r *Registry) Load(entries []models.IdentityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = r.order[:0]
	r.entries = make(map[string]models.IdentityEntry, len(entries))
	for _, e := range entries {
		r.addLocked(e)
	}
}

// Add inserts or replaces the entry for its principal. A replaced entry
// moves to the end, as the most recently connected.
func (r *Registry) Add(e models.IdentityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(e)
}

func (r *Registry) Remove(principal string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[principal]; !ok {
		return false
	}
	delete(r.entries, principal)
	r.dropOrderLocked(principal)
	return true
}

func (r *Registry) Get(principal string) (models.IdentityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[principal]
	return e, ok
}

// List returns a snapshot, oldest first.
func (r *Registry) List() []models.IdentityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.IdentityEntry, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.entries[p])
	}
	return out
}

func (r *Registry) ByProvider(provider string) []models.IdentityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.IdentityEntry
	for _, p := range r.order {
		if e := r.entries[p]; e.Provider == provider {
			out = append(out, e)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) addLocked(e models.IdentityEntry) {
	principal := e.Principal()
	if principal == "" {
		return
	}
	if _, ok := r.entries[principal]; ok {
		r.dropOrderLocked(principal)
	}
	r.entries[principal] = e
	r.order = append(r.order, principal)
}

func (r *Registry) dropOrderLocked(principal string) {
	for i, p := range r.order {
		if p == principal {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
