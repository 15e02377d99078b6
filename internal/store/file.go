package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists each key as one file under a data directory. Path
// separators in keys become subdirectories.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, cleaned), nil
}

// Save writes the value to the key's file.
func (s *FileStore) Save(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	return os.WriteFile(path, value, 0644)
}

// Load reads the value from the key's file.
func (s *FileStore) Load(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete removes the key's file. Absent keys are not an error.
func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys walks the data directory and returns every stored key.
func (s *FileStore) Keys() ([]string, error) {
	var keys []string
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
