package conn

import (
	"sync"
)

// Set is the registry of live connections.
type Set struct {
	sync.Mutex
	conns map[uint32]*Conn
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{conns: make(map[uint32]*Conn)}
}

// Add registers c.
func (s *Set) Add(c *Conn) {
	s.Lock()
	s.conns[c.ID()] = c
	s.Unlock()
}

// Remove unregisters c; it is safe to call for unknown connections.
func (s *Set) Remove(c *Conn) {
	s.Lock()
	if s.conns[c.ID()] == c {
		delete(s.conns, c.ID())
	}
	s.Unlock()
}

// Len returns the number of live connections.
func (s *Set) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.conns)
}

// CloseAll closes every registered connection.
func (s *Set) CloseAll() {
	s.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.Unlock()

	// Close calls back into Remove, so the lock must not be held here
	for _, c := range conns {
		c.Close()
	}
}
