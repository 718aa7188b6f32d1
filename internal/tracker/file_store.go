package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/finnappt/seatwatch/internal/identity"
)

// FileStateStore keeps tracker state in one JSON file, rewritten atomically
// on every save.
type FileStateStore struct {
	path string
}

// NewFileStateStore stores state at path.
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Load reads the saved state. A missing file is an empty state, not an
// error.
func (s *FileStateStore) Load() (map[identity.SeatCategory]Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[identity.SeatCategory]Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracker state: %w", err)
	}
	var out map[identity.SeatCategory]Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode tracker state: %w", err)
	}
	return out, nil
}

// Save rewrites the state file through a temp file and rename.
func (s *FileStateStore) Save(state map[identity.SeatCategory]Snapshot) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tracker state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tracker-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write tracker state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace tracker state: %w", err)
	}
	return nil
}
