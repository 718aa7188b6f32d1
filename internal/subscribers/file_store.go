package subscribers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps subscriber ids in a flat file, one per line. A line may
// carry metadata after a "||" separator; metadata survives mutations of
// other lines.
type FileStore struct {
	path string
}

// NewFileStore builds a store over path. The file is created lazily on the
// first Add.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("subscriber file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create subscriber dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Ids returns all subscriber ids, without their metadata.
func (s *FileStore) Ids() ([]string, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		id, _, _ := strings.Cut(line, "||")
		ids = append(ids, strings.TrimSpace(id))
	}
	return ids, nil
}

// Add appends the id if it is not already present.
func (s *FileStore) Add(id string) error {
	lines, err := s.readLines()
	if err != nil {
		return err
	}
	for _, line := range lines {
		existing, _, _ := strings.Cut(line, "||")
		if strings.TrimSpace(existing) == id {
			return nil
		}
	}
	return s.writeLines(append(lines, id))
}

// Remove drops the id if present. Removing an absent id is a no-op.
func (s *FileStore) Remove(id string) error {
	lines, err := s.readLines()
	if err != nil {
		return err
	}
	kept := lines[:0]
	removed := false
	for _, line := range lines {
		existing, _, _ := strings.Cut(line, "||")
		if strings.TrimSpace(existing) == id {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}
	return s.writeLines(kept)
}

func (s *FileStore) readLines() ([]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read subscriber file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines, nil
}

// writeLines rewrites the whole file through a temp file so a crash mid-write
// cannot lose the list.
func (s *FileStore) writeLines(lines []string) error {
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write subscriber file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace subscriber file: %w", err)
	}
	return nil
}
