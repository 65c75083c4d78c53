package kvstore

import (
	"context"
)

// Op is one write in a batch. Delete ops ignore Value.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// KVStore defines a generic key-value store interface
// Keys are variable-length byte slices; the UTXO set uses 36-byte outpoints.
// Every write goes through Apply so a block's spends and creations land
// together.
type KVStore interface {
	// Get retrieves a value by key
	// Returns nil if key doesn't exist
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Apply writes all ops atomically: either every op lands or none does
	Apply(ctx context.Context, ops []Op) error

	// Close releases any resources
	Close() error
}
