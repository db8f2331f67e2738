package server

import (
	"errors"
	"sync"
)

// ErrRegistryFull indicates the registry is at capacity and the new
// connection must be rejected.
var ErrRegistryFull = errors.New("session registry full")

// Registry is the bounded table of connected sessions, keyed by session
// ID. It is shared by every connection goroutine, so all access goes
// through the mutex; readers get snapshots so no caller holds the lock
// across peer I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	capacity int
	metrics  *Metrics
}

// NewRegistry creates a registry bounded to capacity sessions
func NewRegistry(capacity int) *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
		capacity: capacity,
	}
}

// SetMetrics attaches metrics to the registry
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// Register inserts a session, failing with ErrRegistryFull at capacity
func (r *Registry) Register(sess *Session) error {
	r.mu.Lock()
	if len(r.sessions) >= r.capacity {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecordRegistryFull()
		}
		return ErrRegistryFull
	}
	r.sessions[sess.ID] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(count)
		r.metrics.RecordSessionCreated()
	}
	return nil
}

// Unregister removes a session by identity. Safe to call for a session
// that was already removed.
func (r *Registry) Unregister(sess *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[sess.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sess.ID)
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(count)
	}
}

// Contains reports whether the session is still registered
func (r *Registry) Contains(sess *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sess.ID]
	return ok
}

// FindBySalon returns a snapshot of every session currently in the salon
func (r *Registry) FindBySalon(name string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []*Session
	for _, sess := range r.sessions {
		if sess.CurrentSalon() == name {
			members = append(members, sess)
		}
	}
	return members
}

// All returns a snapshot of every registered session
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session's socket and empties the table
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		sess.Close()
	}
	r.sessions = make(map[uint64]*Session)

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(0)
	}
}
