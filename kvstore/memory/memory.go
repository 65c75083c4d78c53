package memory

import (
	"context"
	"sync"

	"github.com/shruggr/rewardledger/kvstore"
)

// Store is an in-memory implementation of kvstore.KVStore
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory KVStore
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get retrieves a value by key
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), val...), nil
}

// Apply writes all ops under one lock
func (s *Store) Apply(ctx context.Context, ops []kvstore.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		if op.Delete {
			delete(s.data, string(op.Key))
			continue
		}
		s.data[string(op.Key)] = append([]byte(nil), op.Value...)
	}
	return nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Close releases any resources
func (s *Store) Close() error {
	return nil
}
