// Package session keeps the in-memory table of host sessions used for
// active-time accounting. Entries live for the process lifetime.
package session

import "time"

// Session is a snapshot of one registry entry.
type Session struct {
	ID             string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Registry is not safe for concurrent use.
type Registry struct {
	now      func() time.Time
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. now may be nil for time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now, sessions: make(map[string]*Session)}
}

// Upsert creates the session if absent. An existing entry is returned as is.
func (r *Registry) Upsert(id string) Session {
	if s, ok := r.sessions[id]; ok {
		return *s
	}
	t := r.now()
	s := &Session{ID: id, CreatedAt: t, LastActivityAt: t}
	r.sessions[id] = s
	return *s
}

// Touch sets the session's last activity to now. Unknown ids are ignored.
func (r *Registry) Touch(id string) {
	if s, ok := r.sessions[id]; ok {
		s.LastActivityAt = r.now()
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int { return len(r.sessions) }
