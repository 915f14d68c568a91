package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peteski22/adsbridge/internal/state"
)

// FileStateStore stores the state document in a local JSON file.
type FileStateStore struct {
	path string
}

// NewFileStateStore creates a new FileStateStore that reads/writes to the given path.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	return &FileStateStore{path: path}, nil
}

// Load reads the state file. A missing file is an empty state.
func (s *FileStateStore) Load(_ context.Context) (*state.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.New(), nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	st, err := state.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}

	return st, nil
}

// Save writes the state to a temporary file and renames it into place.
func (s *FileStateStore) Save(_ context.Context, st *state.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	return nil
}
