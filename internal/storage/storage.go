package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// JSONStorage persists runs to a single JSON document, rewritten atomically
// after every change.
type JSONStorage struct {
	*MemoryStorage
	path string
}

// NewJSONStorage opens the store at path, loading existing data if the file
// exists.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{MemoryStorage: NewMemoryStorage(), path: path}
	s.persist = s.write

	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("loading storage: %w", err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *JSONStorage) Path() string {
	return s.path
}

// Load replaces the in-memory state with the file contents. A missing file
// leaves the store empty.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path) // #nosec G304 -- storage path comes from the run configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	data := newStorageData()
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if data.Runs == nil {
		data.Runs = make(map[string]*runRecord)
	}
	s.data = data
	return nil
}

// Save writes the current state to disk.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit()
}

func (s *JSONStorage) write(data *storageData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	// Write to temp file first
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.path); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}
	return nil
}
