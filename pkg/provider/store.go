package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SelectionStore persists the selected provider UUID across bridge
// restarts. An empty string means no selection.
type SelectionStore interface {
	Load() (string, error)
	Save(uuid string) error
}

// selectionState is the on-disk shape of the persisted selection.
type selectionState struct {
	SelectedUUID string `json:"selectedUuid"`
}

// FileStore persists the selection as a small JSON state file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store writing to path. Parent directories are
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements SelectionStore. A missing state file is an empty
// selection, not an error.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read selection state: %w", err)
	}

	var state selectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return "", fmt.Errorf("failed to parse selection state: %w", err)
	}
	return state.SelectedUUID, nil
}

// Save implements SelectionStore.
func (s *FileStore) Save(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(selectionState{SelectedUUID: uuid})
	if err != nil {
		return fmt.Errorf("failed to encode selection state: %w", err)
	}

	// Write-then-rename so a crash never leaves a torn state file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write selection state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace selection state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process SelectionStore for tests and embedded use.
type MemoryStore struct {
	mu   sync.Mutex
	uuid string

	loadErr error
	saveErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements SelectionStore
func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", s.loadErr
	}
	return s.uuid, nil
}

// Save implements SelectionStore
func (s *MemoryStore) Save(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.uuid = uuid
	return nil
}

// SetLoadError sets an error to be returned by Load
func (s *MemoryStore) SetLoadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// SetSaveError sets an error to be returned by Save
func (s *MemoryStore) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}
