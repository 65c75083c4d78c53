// Package merkle builds Bitcoin-style merkle roots and inclusion proofs over
// transaction ids.
package merkle

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// ProofNode is one sibling on the path from a leaf to the root
type ProofNode struct {
	Hash   chainhash.Hash
	IsLeft bool // true if the sibling sits on the left
}

// Proof shows that Leaf is at Position in a tree with a given root.
// Nodes are ordered from the leaf level upwards.
type Proof struct {
	Leaf     chainhash.Hash
	Position uint32
	Nodes    []ProofNode
}

// BuildProof builds the inclusion proof for hashes[index]
func BuildProof(hashes []chainhash.Hash, index int) (*Proof, error) {
	if index < 0 || index >= len(hashes) {
		return nil, fmt.Errorf("position %d exceeds leaf count %d", index, len(hashes))
	}

	proof := &Proof{
		Leaf:     hashes[index],
		Position: uint32(index),
		Nodes:    []ProofNode{},
	}

	level := hashes
	pos := index
	for len(level) > 1 {
		if pos%2 == 0 {
			sibling := level[pos]
			if pos+1 < len(level) {
				sibling = level[pos+1]
			}
			proof.Nodes = append(proof.Nodes, ProofNode{Hash: sibling, IsLeft: false})
		} else {
			proof.Nodes = append(proof.Nodes, ProofNode{Hash: level[pos-1], IsLeft: true})
		}

		level = nextLevel(level)
		pos /= 2
	}

	return proof, nil
}

// VerifyProof reports whether proof leads to expectedRoot
func VerifyProof(proof *Proof, expectedRoot chainhash.Hash) bool {
	if proof == nil {
		return false
	}

	current := proof.Leaf
	for _, node := range proof.Nodes {
		if node.IsLeft {
			current = hashPair(node.Hash, current)
		} else {
			current = hashPair(current, node.Hash)
		}
	}

	return current == expectedRoot
}
