// Package docstore implements store.DocumentStore as a single JSON file,
// the degraded backend used when the primary database is unavailable.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alfredjeanlab/bizledger/internal/store"
)

// DocumentName is the well-known file name of the degraded document.
const DocumentName = "bizledger.json"

// FileStore keeps the whole Ledger document in one file.
type FileStore struct {
	path string
}

// Compile-time check that FileStore implements store.DocumentStore.
var _ store.DocumentStore = (*FileStore)(nil)

// New returns a store writing DocumentName inside dir.
func New(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, DocumentName)}
}

// Path returns the location of the document file.
func (s *FileStore) Path() string {
	return s.path
}

// ReadDocument returns the stored document, or store.ErrNoDocument if none
// has been written.
func (s *FileStore) ReadDocument(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNoDocument
	}
	if err != nil {
		return nil, store.Errorf(store.KindDocument, "read document", err)
	}
	return data, nil
}

// WriteDocument replaces the document. The data is written to a temporary
// file in the same directory and renamed over the old one, so readers see
// either the previous or the new document.
func (s *FileStore) WriteDocument(_ context.Context, data []byte) error {
	if err := writeFileAtomic(s.path, data); err != nil {
		return store.Errorf(store.KindDocument, "write document", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
