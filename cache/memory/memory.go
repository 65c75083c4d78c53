package memory

import (
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shruggr/rewardledger/cache"
)

// Cache is an in-memory LRU cache of transaction locations
type Cache struct {
	lru *lru.Cache[chainhash.Hash, cache.Location]
	mu  sync.RWMutex
}

// New creates a new in-memory LRU cache with the specified size
func New(size int) (*Cache, error) {
	l, err := lru.New[chainhash.Hash, cache.Location](size)
	if err != nil {
		return nil, err
	}

	return &Cache{
		lru: l,
	}, nil
}

// Get retrieves the cached location of a transaction
func (c *Cache) Get(txid chainhash.Hash) (cache.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lru.Get(txid)
}

// Put stores the location of a transaction
func (c *Cache) Put(txid chainhash.Hash, loc cache.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(txid, loc)
	return nil
}

// Delete removes a cached location
func (c *Cache) Delete(txid chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(txid)
	return nil
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lru.Len()
}
