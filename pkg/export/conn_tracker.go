package export

import (
	"net"
	"sync"
	"time"
)

// connTracker tracks accepted peer connections and their accept times.
// The stale connection sweep uses it to force-close peers that have been
// connected longer than the configured limit.
type connTracker struct {
	mu    sync.Mutex
	conns map[net.Conn]time.Time
}

func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[net.Conn]time.Time),
	}
}

// Add registers a connection with the current time.
func (ct *connTracker) Add(conn net.Conn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[conn] = time.Now()
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ct *connTracker) Remove(conn net.Conn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, conn)
}

// CloseStale closes and removes all connections older than maxAge.
// Returns the number of connections closed.
func (ct *connTracker) CloseStale(maxAge time.Duration) int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	closed := 0
	for conn, accepted := range ct.conns {
		if accepted.Before(cutoff) {
			_ = conn.Close()
			delete(ct.conns, conn)
			closed++
		}
	}
	return closed
}

// CloseAll closes and removes all tracked connections.
func (ct *connTracker) CloseAll() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	closed := 0
	for conn := range ct.conns {
		_ = conn.Close()
		delete(ct.conns, conn)
		closed++
	}
	return closed
}

// Len returns the number of tracked connections.
func (ct *connTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}
