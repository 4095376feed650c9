// Package contact keeps the in-memory directory of known peers.
package contact

import (
	"errors"
	"sort"
	"sync"
)

var ErrContactUnknown = errors.New("contact unknown")

type Contact struct {
	ID          string
	DisplayName string
	Online      bool
}

// Registry is shared between the chat loop and the transport delivery
// goroutine, so every method locks.
type Registry struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewRegistry() *Registry {
	return &Registry{contacts: make(map[string]Contact)}
}

// Add stores c unless a contact with the same id exists. The first writer
// wins and later adds leave the stored contact untouched.
func (r *Registry) Add(c Contact) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contacts[c.ID]; exists {
		return false
	}
	r.contacts[c.ID] = c
	return true
}

func (r *Registry) Get(id string) (Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contacts[id]
	return c, ok
}

// Lookup is Get for callers that want an error.
func (r *Registry) Lookup(id string) (Contact, error) {
	c, ok := r.Get(id)
	if !ok {
		return Contact{}, ErrContactUnknown
	}
	return c, nil
}

// List returns a snapshot ordered by display name, then id.
func (r *Registry) List() []Contact {
	r.mu.RLock()
	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetOnline does nothing for an unknown id.
func (r *Registry) SetOnline(id string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[id]
	if !ok {
		return
	}
	c.Online = online
	r.contacts[id] = c
}

func (r *Registry) IsOnline(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contacts[id].Online
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contacts)
}
