package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub", "state.json")
	store := NewStateStore(path)

	state := &HubState{
		HubID:          "6f1c2a34-0000-0000-0000-000000000001",
		EventSequences: map[uint16]uint64{1: 42, 2: 7},
		Endpoints:      []uint16{1, 2},
	}
	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected state, got nil")
	}
	if loaded.Version != StateVersion {
		t.Errorf("expected version %d, got %d", StateVersion, loaded.Version)
	}
	if loaded.HubID != state.HubID {
		t.Errorf("expected hub id %s, got %s", state.HubID, loaded.HubID)
	}
	if loaded.EventSequences[1] != 42 || loaded.EventSequences[2] != 7 {
		t.Errorf("unexpected sequences: %v", loaded.EventSequences)
	}
	if len(loaded.Endpoints) != 2 {
		t.Errorf("expected 2 endpoints, got %d", len(loaded.Endpoints))
	}
	if loaded.SavedAt.IsZero() {
		t.Error("expected SavedAt to be stamped")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "missing.json"))

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for missing file, got %+v", state)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := NewStateStore(path).Load(); err == nil {
		t.Error("expected error for corrupt state file")
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	if err := store.Save(&HubState{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected state file removed")
	}

	// Clearing a missing file is not an error
	if err := store.Clear(); err != nil {
		t.Errorf("expected idempotent Clear, got %v", err)
	}
}
