package session

import (
	"fmt"
	"sync"
)

// Registry tracks live scan sessions by order. At most one session may be
// open per order at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Add registers a session for an order; it fails if one is already live.
func (r *Registry) Add(orderID int64, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[orderID]; exists {
		return fmt.Errorf("a scan session is already open for order %d", orderID)
	}
	r.sessions[orderID] = s
	return nil
}

// Get returns the live session for an order.
func (r *Registry) Get(orderID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[orderID]
	return s, ok
}

// Remove closes and forgets the session for an order.
func (r *Registry) Remove(orderID int64) {
	r.mu.Lock()
	s := r.sessions[orderID]
	delete(r.sessions, orderID)
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
