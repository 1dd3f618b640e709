package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// File stores each key as a JSON file in a directory. Writes are atomic
// (temp file + rename) so a crash mid-write never corrupts a snapshot.
type File struct {
	dir string
}

// NewFile creates the directory if needed and returns a file store.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", dir)
	}
	return &File{dir: dir}, nil
}

// Get returns the value for key.
func (f *File) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to read key %s", key)
	}
	return data, nil
}

// Set stores the value under key.
func (f *File) Set(key string, value []byte) error {
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write key %s", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to commit key %s", key)
	}
	return nil
}

// Delete removes the value under key.
func (f *File) Delete(key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete key %s", key)
	}
	return nil
}

func (f *File) path(key string) string {
	// Keys are flat identifiers; path separators are flattened so a key
	// can never escape the store directory.
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(f.dir, safe+".json")
}
