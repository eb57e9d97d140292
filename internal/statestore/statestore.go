// Package statestore persists the {pid, creation_time} record the
// Supervisor uses to recognize and reap an orphaned sidecar process left
// over from a prior run.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/browseros-org/sidecar-supervisor/internal/model"
)

// Store reads, writes, and deletes the on-disk server.state file beneath
// an execution directory. A parse failure on read is treated as absence,
// never as an error: a stale or half-written file must never crash the
// Supervisor's startup sequence.
type Store struct {
	path string
}

// New returns a Store rooted at executionDir/server.state.
func New(executionDir string) *Store {
	return &Store{path: filepath.Join(executionDir, "server.state")}
}

// Read returns the persisted state, or (nil, nil) if the file is absent
// or fails to parse.
func (s *Store) Read() (*model.ServerState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var state model.ServerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// Write persists state atomically: write to a temp file in the same
// directory, then rename over the final path.
func (s *Store) Write(state model.ServerState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal server state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Delete removes the state file. Absence is success, not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state file: %w", err)
	}
	return nil
}
