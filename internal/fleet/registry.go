package fleet

import "sync"

// Registry is the shared map from submarine identifier to live session.
// Sessions register themselves from their own receive loop once the
// ready handshake names them; nothing pre-registers a session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// register maps id to s, replacing any prior entry (last-writer-wins).
// The evicted session's connection is left to die on its own; it is no
// longer reachable by identifier.
func (r *Registry) register(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

// remove deletes the entry for id only if it still points at s, so a
// stale session tearing down never evicts a newer one that reused the
// same identifier.
func (r *Registry) remove(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
}

// Lookup returns the session registered under id, or nil.
func (r *Registry) Lookup(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// First returns any one registered session, or nil if none. Iteration
// order is not stable across calls.
func (r *Registry) First() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		return s
	}
	return nil
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Drain removes every entry and returns the sessions that were
// registered. The caller is responsible for terminating them.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}
