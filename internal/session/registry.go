// SPDX-License-Identifier: MIT

package session

import "sync"

// Registry tracks live controllers by session id. There is no global
// instance; the daemon owns one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Controller)}
}

// Add registers a controller under its session id, replacing any previous
// entry with the same id.
func (r *Registry) Add(c *Controller) {
	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Remove unregisters and returns the controller without disposing it.
func (r *Registry) Remove(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return c, ok
}

func (r *Registry) List() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		list = append(list, c)
	}
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown disposes every registered controller and empties the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Dispose()
	}
}
