// Package broadcast fans encoded events out to open connections.
//
// Delivery is fire-and-forget: Send must not block, a failing recipient is
// logged and skipped, and the loop always runs to completion.
package broadcast

import (
	"errors"
	"sync"
)

var (
	// ErrSendBufferFull is returned by Send when a recipient's outbound
	// queue has no room.
	ErrSendBufferFull = errors.New("broadcast: send buffer full")
	// ErrClosed is returned by Send on a connection that has been closed.
	ErrClosed = errors.New("broadcast: connection closed")
)

// Connection is one open transport channel to a client.
type Connection interface {
	ID() string
	// Send enqueues data for delivery without blocking.
	Send(data []byte) error
	Close() error
}

// Set is the collection of currently open connections, in accept order.
type Set struct {
	mu    sync.RWMutex
	conns map[string]Connection
	order []string
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{conns: make(map[string]Connection)}
}

// Add inserts conn, replacing any connection with the same id.
func (s *Set) Add(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[conn.ID()]; !ok {
		s.order = append(s.order, conn.ID())
	}
	s.conns[conn.ID()] = conn
}

// Remove deletes the connection with id and reports whether it was present.
func (s *Set) Remove(id string) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[id]
	if !ok {
		return nil, false
	}
	delete(s.conns, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return conn, true
}

// Len reports the number of open connections.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Snapshot returns the open connections in accept order.
func (s *Set) Snapshot() []Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Connection, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conns[id])
	}
	return out
}
