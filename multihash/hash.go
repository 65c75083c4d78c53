// Package multihash produces self-describing BLAKE3 digests used to commit
// to ledger state snapshots.
package multihash

import (
	"bytes"
	"encoding/hex"
	"fmt"

	mh "github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake3"
	"lukechampine.com/blake3"
)

// DigestSize is the BLAKE3 output length in bytes
const DigestSize = 32

// Digest wraps a BLAKE3 multihash
// Format: <0x1e><0x20><32 bytes> = 34 bytes total
type Digest []byte

// NewDigest creates a BLAKE3 multihash from data
func NewDigest(data []byte) (Digest, error) {
	h, err := mh.Sum(data, mh.BLAKE3, DigestSize)
	if err != nil {
		return nil, fmt.Errorf("failed to hash data: %w", err)
	}
	return Digest(h), nil
}

// Verify checks that the digest matches the provided data
func (d Digest) Verify(data []byte) error {
	decoded, err := mh.Decode(mh.Multihash(d))
	if err != nil {
		return fmt.Errorf("invalid multihash: %w", err)
	}

	if decoded.Code != mh.BLAKE3 {
		return fmt.Errorf("expected BLAKE3 hash, got 0x%x", decoded.Code)
	}

	computed, err := mh.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return fmt.Errorf("hash computation failed: %w", err)
	}

	if !bytes.Equal(computed, d) {
		return fmt.Errorf("hash verification failed")
	}

	return nil
}

// Equal reports whether two digests are identical
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d, other)
}

// Bytes returns the raw multihash bytes
func (d Digest) Bytes() []byte {
	return []byte(d)
}

// Hex returns the hex-encoded multihash
func (d Digest) Hex() string {
	return hex.EncodeToString(d)
}

// Builder hashes a stream of records without buffering them
type Builder struct {
	h *blake3.Hasher
}

// NewBuilder creates an empty streaming digest
func NewBuilder() *Builder {
	return &Builder{h: blake3.New(DigestSize, nil)}
}

// Write appends data to the digest
func (b *Builder) Write(p []byte) (int, error) {
	return b.h.Write(p)
}

// Sum wraps the BLAKE3 sum of everything written as a multihash
func (b *Builder) Sum() (Digest, error) {
	h, err := mh.Encode(b.h.Sum(nil), mh.BLAKE3)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash: %w", err)
	}
	return Digest(h), nil
}
