package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	mu   sync.Mutex
	cart *Cart

	// guarded by Registry.mu
	touched time.Time
}

// Registry holds server-side carts for clients that cannot keep one.
// Sessions idle for longer than ttl are discarded.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates a session registry
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open creates a new empty cart session and returns its id
func (r *Registry) Open() string {
	id := uuid.New().String()

	r.mu.Lock()
	r.sessions[id] = &session{cart: New(), touched: r.now()}
	r.mu.Unlock()
	return id
}

// With runs fn on the session's cart while holding the session lock.
// It returns false if the session does not exist or has expired.
func (r *Registry) With(id string, fn func(c *Cart) error) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && r.expired(s) {
		delete(r.sessions, id)
		ok = false
	}
	if ok {
		s.touched = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return true, fn(s.cart)
}

// Abandon discards a session without side effects
func (r *Registry) Abandon(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// expired must be called with r.mu held
func (r *Registry) expired(s *session) bool {
	return r.ttl > 0 && r.now().Sub(s.touched) > r.ttl
}

// Sweep discards expired sessions and returns how many were removed
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if r.expired(s) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
