package block

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// ctxCheckInterval is how many nonces are tried between context checks
const ctxCheckInterval = 4096

// Mine searches nonces until the hash has difficulty leading zero hex
// characters. It blocks until a nonce is found or ctx is done; on
// cancellation the block keeps its last tried nonce and must not be used.
func (b *Block) Mine(ctx context.Context, difficulty uint32) error {
	b.Bits = difficulty
	b.Hash = b.CalculateHash()

	for attempts := uint64(1); !MeetsDifficulty(b.Hash, difficulty); attempts++ {
		if attempts%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b.Nonce++
		b.Hash = b.CalculateHash()
	}

	return nil
}

// HasProofOfWork reports whether the stored hash meets the block's bits
func (b *Block) HasProofOfWork() bool {
	return MeetsDifficulty(b.Hash, b.Bits)
}

// MeetsDifficulty reports whether hash has at least difficulty leading zero
// hex characters
func MeetsDifficulty(hash chainhash.Hash, difficulty uint32) bool {
	return LeadingZeroNibbles(hash) >= int(difficulty)
}

// LeadingZeroNibbles counts leading zero hex characters in natural order
func LeadingZeroNibbles(hash chainhash.Hash) int {
	count := 0
	for _, b := range hash {
		if b == 0 {
			count += 2
			continue
		}
		if b>>4 == 0 {
			count++
		}
		break
	}
	return count
}
