// Package persistence stores the hub state that must survive a
// restart: event sequence counters (so gap detection stays meaningful
// across hub restarts) and the ids of endpoints seen before shutdown.
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

// HubState contains the persisted runtime state of a hub instance.
type HubState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// HubID is the hub instance identity (UUID).
	HubID string `json:"hub_id,omitempty"`

	// EventSequences maps endpoint ids to their last issued event
	// sequence number. Restored at startup so sequence numbers keep
	// increasing across restarts.
	EventSequences map[uint16]uint64 `json:"event_sequences,omitempty"`

	// Endpoints lists the endpoint ids registered at save time.
	Endpoints []uint16 `json:"endpoints,omitempty"`
}

// StateStore manages persistence of hub state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a hub state store.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Save persists the hub state to disk.
func (s *StateStore) Save(state *HubState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// Load reads the hub state from disk.
// Returns nil, nil if the file doesn't exist (fresh state).
func (s *StateStore) Load() (*HubState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &HubState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
