// Package session tracks which open connections have announced a username.
// The Registry is the source of truth for who is online.
package session

import (
	"sync"
	"time"
)

// Entry is the registry value for one named connection.
type Entry struct {
	Username    string
	ConnectedAt time.Time
}

// Registry maps connection ids to announced usernames. Iteration order is
// the order in which connections first registered; overwriting an entry
// keeps its position.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Register inserts or overwrites the entry for connID. Usernames are not
// required to be unique.
func (r *Registry) Register(connID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[connID]; ok {
		e.Username = username
		r.entries[connID] = e
		return
	}

	r.entries[connID] = Entry{Username: username, ConnectedAt: r.now()}
	r.order = append(r.order, connID)
}

// Unregister removes the entry for connID and reports whether one existed.
func (r *Registry) Unregister(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}

	delete(r.entries, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

// Lookup returns the entry for connID, if any.
func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[connID]
	return e, ok
}

// Snapshot returns the registered usernames in iteration order.
// Duplicates are preserved.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.entries[id].Username)
	}
	return names
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
