package merkle

import (
	"crypto/sha256"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// Root computes the Bitcoin merkle root of an ordered list of hashes.
// Odd levels pair the last node with itself; parents are the double SHA-256
// of left || right. An empty list yields the zero hash.
func Root(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}

	level := append([]chainhash.Hash(nil), hashes...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// nextLevel hashes adjacent pairs of one tree level
func nextLevel(hashes []chainhash.Hash) []chainhash.Hash {
	n := len(hashes)
	parents := make([]chainhash.Hash, 0, (n+1)/2)

	for i := 0; i < n; i += 2 {
		left := hashes[i]
		right := left
		if i+1 < n {
			right = hashes[i+1]
		}
		parents = append(parents, hashPair(left, right))
	}

	return parents
}

// hashPair computes the Bitcoin merkle hash of two child hashes
func hashPair(left, right chainhash.Hash) chainhash.Hash {
	var combined [64]byte
	copy(combined[0:32], left[:])
	copy(combined[32:64], right[:])
	return doubleSHA256(combined[:])
}

// doubleSHA256 computes SHA256(SHA256(data))
func doubleSHA256(data []byte) chainhash.Hash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}
