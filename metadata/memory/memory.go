package memory

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/metadata"
)

// Store is a map-backed implementation of metadata.Store
type Store struct {
	mu       sync.RWMutex
	byHeight map[uint64]*metadata.BlockMeta
	byHash   map[chainhash.Hash]*metadata.BlockMeta
	latest   *metadata.BlockMeta
}

// New creates an empty metadata store
func New() *Store {
	return &Store{
		byHeight: make(map[uint64]*metadata.BlockMeta),
		byHash:   make(map[chainhash.Hash]*metadata.BlockMeta),
	}
}

// PutBlock stores block metadata
func (s *Store) PutBlock(ctx context.Context, meta *metadata.BlockMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *meta
	if old, ok := s.byHeight[m.Height]; ok {
		delete(s.byHash, old.BlockHash)
	}
	s.byHeight[m.Height] = &m
	s.byHash[m.BlockHash] = &m

	if s.latest == nil || m.Height >= s.latest.Height {
		s.latest = &m
	}
	return nil
}

// GetBlock retrieves block metadata by height
func (s *Store) GetBlock(ctx context.Context, height uint64) (*metadata.BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMeta(s.byHeight[height]), nil
}

// GetBlockByHash retrieves block metadata by block hash
func (s *Store) GetBlockByHash(ctx context.Context, blockHash chainhash.Hash) (*metadata.BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMeta(s.byHash[blockHash]), nil
}

// GetLatestBlock returns the highest block stored
func (s *Store) GetLatestBlock(ctx context.Context) (*metadata.BlockMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMeta(s.latest), nil
}

// Close releases any resources
func (s *Store) Close() error {
	return nil
}

func copyMeta(m *metadata.BlockMeta) *metadata.BlockMeta {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
