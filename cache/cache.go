package cache

import (
	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// Location points at a confirmed transaction inside the chain
type Location struct {
	Height   uint64 // block index
	Position int    // index within the block's transaction list
}

// LocationCache provides fast access to previously located transactions
// This avoids rescanning the chain for repeated lookups of the same txid
type LocationCache interface {
	// Get retrieves the cached location of a transaction
	// Returns false if not cached
	Get(txid chainhash.Hash) (Location, bool)

	// Put stores the location of a transaction
	Put(txid chainhash.Hash, loc Location) error

	// Delete removes a cached location
	Delete(txid chainhash.Hash) error
}
