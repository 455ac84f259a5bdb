package conversation

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/duckmesh/dbchat/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry owns every live session in the process, keyed by a random id.
type Registry struct {
	opts     Options
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, sessions: make(map[string]*Session)}
}

func (r *Registry) Create() *Session {
	session := NewSession(uuid.NewString(), r.opts)
	r.mu.Lock()
	r.sessions[session.ID()] = session
	count := len(r.sessions)
	r.mu.Unlock()
	observability.SetActiveSessions(count)
	return session
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session and closes its connection.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	observability.SetActiveSessions(count)
	return session.Close()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	observability.SetActiveSessions(0)

	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
