package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDataStore persists dial-data as one JSON document per application
// under a data directory. Writes go through a temp file and rename so a
// crash mid-write never corrupts the stored data.
type FileDataStore struct {
	dir string
}

// NewFileDataStore creates the data directory if needed and returns a
// store rooted at it.
func NewFileDataStore(dir string) (*FileDataStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dial-data directory: %w", err)
	}
	return &FileDataStore{dir: dir}, nil
}

// Load returns the stored dial-data for the application. A missing file
// is not an error; it yields an empty map.
func (s *FileDataStore) Load(name string) (map[string]string, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading dial-data for %q: %w", name, err)
	}
	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding dial-data for %q: %w", name, err)
	}
	return data, nil
}

// Save replaces the stored dial-data for the application.
func (s *FileDataStore) Save(name string, data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding dial-data for %q: %w", name, err)
	}
	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing dial-data for %q: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing dial-data for %q: %w", name, err)
	}
	return nil
}

func (s *FileDataStore) path(name string) string {
	return filepath.Join(s.dir, sanitizeFileName(name)+".json")
}

// sanitizeFileName maps an application name to a safe file stem. Names
// are caller-controlled registration values, not request input, but they
// may still contain characters a filesystem rejects.
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
