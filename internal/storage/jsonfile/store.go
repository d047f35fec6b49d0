// Package jsonfile implements storage.DocumentStore on top of plain JSON
// files. Every read loads the full document and every write replaces it via
// write-to-temp + rename, which is atomic on POSIX filesystems.
//
// Concurrent writers are not safely supported: read-modify-write cycles from
// two processes can lose updates. The sync queue owns its document from a
// single writer; see the package doc of syncq.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
)

// Store is a directory of named JSON documents.
type Store struct {
	dir string
}

// New creates a document store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: document directory is required", storage.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("jsonfile: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Read unmarshals the named document into v.
// Returns storage.ErrNotFound when the document does not exist yet.
func (s *Store) Read(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("jsonfile: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonfile: decode %s: %w", name, err)
	}
	return nil
}

// Write marshals v and atomically replaces the named document.
func (s *Store) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", name, err)
	}

	path := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: rename %s: %w", name, err)
	}
	return nil
}

// Path returns the filesystem path backing the named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
