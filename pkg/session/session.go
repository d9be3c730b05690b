package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	// ErrNoMemory indicates session allocation failed because the store
	// is at capacity. Surfaces to user space as an out-of-memory error.
	ErrNoMemory = errors.New("out of memory for session")

	// ErrNoSession indicates an operation referenced a handle with no
	// live session attached. Drivers treat this as an invalid state,
	// never as something to ignore.
	ErrNoSession = errors.New("no session attached")
)

// Handle is an opaque reference to a live session, issued at open time.
// The zero handle never refers to a session.
type Handle uint64

// Session is the per-open state of one file handle on a device node.
type Session struct {
	// ID is a unique trace identifier for correlating log events.
	ID string

	// OpenedAt records when the open call created this session.
	OpenedAt time.Time

	// Scratch is a placeholder field. A protocol layer plugging into
	// the dispatch contract replaces it with real per-open state.
	Scratch int

	handle Handle
}

// Handle returns the handle this session is registered under.
func (s *Session) Handle() Handle {
	return s.handle
}

// Store is an arena of live sessions indexed by handle.
// It is safe for concurrent use; each session is exclusively owned by
// its opener, so the store only guards the index itself.
type Store struct {
	mu sync.Mutex

	sessions map[Handle]*Session
	next     Handle

	// capacity limits live sessions; 0 means unlimited.
	capacity int

	created  uint64
	released uint64
}

// NewStore creates a session store. capacity bounds the number of live
// sessions; 0 means unlimited.
func NewStore(capacity int) *Store {
	return &Store{
		sessions: make(map[Handle]*Session),
		capacity: capacity,
	}
}

// Create allocates a new session and returns it with its handle.
// Fails with ErrNoMemory when the store is at capacity; the open call
// that triggered the allocation fails and no session is attached.
func (s *Store) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && len(s.sessions) >= s.capacity {
		return nil, ErrNoMemory
	}

	s.next++
	sess := &Session{
		ID:       uuid.New().String(),
		OpenedAt: time.Now(),
		handle:   s.next,
	}
	s.sessions[sess.handle] = sess
	s.created++
	return sess, nil
}

// Get returns the session for a handle, or ErrNoSession if the handle
// has no live session (never opened, or already released).
func (s *Store) Get(h Handle) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[h]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Release destroys the session for a handle. Exactly one Release must
// follow each Create; a second Release, or a Release without a Create,
// fails with ErrNoSession.
func (s *Store) Release(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[h]; !ok {
		return ErrNoSession
	}
	delete(s.sessions, h)
	s.released++
	return nil
}

// Live returns the number of live sessions.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Created returns the total number of sessions ever created.
func (s *Store) Created() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Released returns the total number of sessions ever released.
func (s *Store) Released() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
