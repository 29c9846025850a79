package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each document as <dir>/<key>.json.
type FileStore struct {
	dir string
}

var _ DocumentStore = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing key.
func (f *FileStore) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Load reads the document; a missing or blank file counts as never written.
func (f *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return data, nil
}

// Save writes to a temp file and renames it over the old document so readers
// never see a half-written file.
func (f *FileStore) Save(_ context.Context, key string, body []byte) error {
	path := f.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; files are closed after every write.
func (f *FileStore) Close() error {
	return nil
}
