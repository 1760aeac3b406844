// Package memory provides a thread-safe in-memory implementation of storage.KeyStore.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/sks/storage"
)

// Store is a thread-safe in-memory storage.KeyStore.
// Nothing is persisted; suitable for development, tests and demos.
type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

var _ storage.KeyStore = (*Store)(nil)

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", storage.Fault("get", key, storage.ErrClosed)
	}
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Fault("put", key, storage.ErrClosed)
	}
	s.data[key] = value
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Fault("remove", key, storage.ErrClosed)
	}
	delete(s.data, key)
	return nil
}

// Close drops the contents. Later operations fail with a StoreError.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
