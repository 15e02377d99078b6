// Package store provides the load/save key-value interface used for
// persisting session and reward records. The broadcast core never touches
// it; history durability is an external concern.
package store

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Load for an unknown key.
var ErrNotFound = errors.New("key not found")

// Store is a minimal key-value persistence boundary.
type Store interface {
	Save(key string, value []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
	Keys() ([]string, error)
}

// MemoryStore is an in-process Store used in tests and when persistence is
// disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save stores a copy of the value under key.
func (s *MemoryStore) Save(key string, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	s.mu.Lock()
	s.data[key] = copied
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the value for key.
func (s *MemoryStore) Load(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Keys lists all stored keys.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
