package metadata

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// BlockMeta contains block header fields and counts for lookups
// Transactions stay in the ledger's chain; this index only maps hashes and
// heights to headers
type BlockMeta struct {
	Height       uint64
	BlockHash    chainhash.Hash
	PreviousHash chainhash.Hash
	MerkleRoot   chainhash.Hash
	TxCount      int
	Timestamp    int64
	Bits         uint32
	Nonce        uint64
}

// Store defines the interface for storing block metadata
type Store interface {
	// PutBlock stores block metadata
	PutBlock(ctx context.Context, meta *BlockMeta) error

	// GetBlock retrieves block metadata by height
	// Returns nil if no block exists at that height
	GetBlock(ctx context.Context, height uint64) (*BlockMeta, error)

	// GetBlockByHash retrieves block metadata by block hash
	// Returns nil if the hash is unknown
	GetBlockByHash(ctx context.Context, blockHash chainhash.Hash) (*BlockMeta, error)

	// GetLatestBlock returns the highest block stored
	GetLatestBlock(ctx context.Context) (*BlockMeta, error)

	// Close releases any resources
	Close() error
}
