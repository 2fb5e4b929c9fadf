// Package registry owns the id -> session map for all active calls. It is
// the only shared mutable structure between calls; each session's own state
// is guarded by the session lock.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/hotslice/voicedesk/internal/model/call"
)

// Registry keeps one session per active stream id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*call.Session
}

// New bootstraps an empty in-memory registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*call.Session),
	}
}

// Create provisions a fresh session under id, fully replacing any prior
// record so leftover state from a previous call on a reused transport can
// never leak into a new one.
func (r *Registry) Create(id, callerPhone string) *call.Session {
	session := call.NewSession(id, callerPhone)

	r.mu.Lock()
	if old, ok := r.sessions[id]; ok {
		old.Destroy()
		log.Printf("[registry] replaced existing session id=%s", id)
	}
	r.sessions[id] = session
	r.mu.Unlock()

	return session
}

// Get retrieves an active session. A miss is a normal condition once a call
// has ended, so it is reported by the bool, never an error.
func (r *Registry) Get(id string) (*call.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Delete removes a session and cancels its timers. Deleting an unknown id
// logs and no-ops, since the call may have already ended.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		log.Printf("[registry] delete for unknown session id=%s", id)
		return
	}
	session.Destroy()
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions whose last event is older than maxAge. It is a leak
// guard for transports that die without a stop event; a healthy call is
// removed by its own teardown path long before this fires.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	r.mu.Lock()
	var stale []*call.Session
	for id, session := range r.sessions {
		session.Lock()
		old := session.LastEventAt.Before(cutoff)
		session.Unlock()
		if old {
			stale = append(stale, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range stale {
		log.Printf("[registry] swept stale session id=%s", session.ID)
		session.Destroy()
	}
	return len(stale)
}
