package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// HostState contains the persistent state of a device host.
type HostState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Majors maps device names to their assigned major numbers.
	// Persisting assignments keeps device numbering stable across
	// restarts.
	Majors map[string]uint32 `json:"majors,omitempty"`
}

// HostStateStore manages persistence of host state to a JSON file.
type HostStateStore struct {
	mu   sync.Mutex
	path string
}

// NewHostStateStore creates a new host state store.
func NewHostStateStore(path string) *HostStateStore {
	return &HostStateStore{path: path}
}

// Save persists the host state to disk.
func (s *HostStateStore) Save(state *HostState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the host state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *HostStateStore) Load() (*HostState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &HostState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Clear removes the state file.
func (s *HostStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
