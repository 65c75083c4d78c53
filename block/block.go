// Package block defines the ledger block format: a header committing to an
// ordered transaction list through a merkle root, sealed by proof of work.
package block

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/merkle"
	"github.com/shruggr/rewardledger/transaction"
)

// Version is the block format version
const Version uint32 = 1

// RootHash is the previous-hash sentinel carried by the genesis block
var RootHash = chainhash.Hash{}

// Block is a header plus its transactions
type Block struct {
	Version      uint32
	Index        uint64
	Timestamp    int64 // unix milliseconds
	Transactions []*transaction.Transaction
	PreviousHash chainhash.Hash
	MerkleRoot   chainhash.Hash
	Bits         uint32 // required leading zero hex characters
	Nonce        uint64
	Hash         chainhash.Hash
}

// New creates an unmined block with its merkle root and initial hash filled
func New(index uint64, previousHash chainhash.Hash, txs []*transaction.Transaction, bits uint32, timestamp int64) *Block {
	b := &Block{
		Version:      Version,
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
		Bits:         bits,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()
	b.Hash = b.CalculateHash()
	return b
}

// TxIDs returns the ids of the block's transactions in order
func (b *Block) TxIDs() []chainhash.Hash {
	ids := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID()
	}
	return ids
}

// ComputeMerkleRoot recomputes the merkle root over the transaction ids
func (b *Block) ComputeMerkleRoot() chainhash.Hash {
	return merkle.Root(b.TxIDs())
}

// CalculateHash is the single SHA-256 of the 92-byte header:
// version u32 | index u64 | previousHash | merkleRoot | timestamp i64 | bits u32 | nonce u64
func (b *Block) CalculateHash() chainhash.Hash {
	return chainhash.Hash(sha256.Sum256(b.headerBytes()))
}

func (b *Block) headerBytes() []byte {
	buf := make([]byte, 0, 92)
	buf = binary.BigEndian.AppendUint32(buf, b.Version)
	buf = binary.BigEndian.AppendUint64(buf, b.Index)
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.MerkleRoot[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Timestamp))
	buf = binary.BigEndian.AppendUint32(buf, b.Bits)
	buf = binary.BigEndian.AppendUint64(buf, b.Nonce)
	return buf
}

// HashHex returns the block hash as natural-order hex
func (b *Block) HashHex() string {
	return transaction.HashHex(b.Hash)
}
