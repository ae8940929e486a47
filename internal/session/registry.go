package session

import "sync"

// Registry is the authoritative map from tenant id to live session. It is the
// single source of truth for "does a session exist". Lookups are safe from
// any goroutine; all mutation is funneled through the Controller so that
// check-then-create never races.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	return s, ok
}

func (r *Registry) Put(tenantID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[tenantID] = s
}

func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tenantID)
}

// List returns the live sessions in unspecified order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
