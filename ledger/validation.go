package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shruggr/rewardledger/block"
	kvmemory "github.com/shruggr/rewardledger/kvstore/memory"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
)

// IsChainValid reports whether ValidateChain succeeds
func (l *Ledger) IsChainValid() bool {
	return l.ValidateChain() == nil
}

// ValidateChain checks every block after genesis: stored hash matches the
// recomputed header hash, the previous hash links to the prior block, the
// merkle root matches the transactions and the hash satisfies the block's
// difficulty. Genesis must link to the root hash. Transaction validity is
// not re-checked; see ValidateHistory.
func (l *Ledger) ValidateChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return validateLinks(l.chain)
}

func validateLinks(chain []*block.Block) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrChainIntegrity)
	}
	if chain[0].PreviousHash != block.RootHash {
		return fmt.Errorf("%w: genesis does not link to the root hash", ErrChainIntegrity)
	}

	for i := 1; i < len(chain); i++ {
		current, previous := chain[i], chain[i-1]

		if current.Hash != current.CalculateHash() {
			return fmt.Errorf("%w: block %d hash mismatch", ErrChainIntegrity, i)
		}
		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("%w: block %d does not link to block %d", ErrChainIntegrity, i, i-1)
		}
		if current.MerkleRoot != current.ComputeMerkleRoot() {
			return fmt.Errorf("%w: block %d merkle root mismatch", ErrChainIntegrity, i)
		}
		if !current.HasProofOfWork() {
			return fmt.Errorf("%w: block %d lacks proof of work", ErrChainIntegrity, i)
		}
	}

	return nil
}

// ValidateHistory replays the whole chain from genesis into a scratch UTXO
// set, re-checking every transaction the way admission would and bounding
// each coinbase by reward plus fees. A block may hold one coinbase, in
// first position; mined blocks never carry a queued coinbase, so only
// blocks added through AddBlock can fail this. The replayed set must match
// the live one, and the block index must agree with the chain. This is a
// full scan and is meant for audits, not the hot path.
func (l *Ledger) ValidateHistory(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := validateLinks(l.chain); err != nil {
		return err
	}

	scratch := utxo.NewSet(kvmemory.New())
	resolve := func(ctx context.Context, op utxo.Outpoint) (transaction.TxOut, error) {
		out, ok, err := scratch.Get(ctx, op)
		if err != nil {
			return transaction.TxOut{}, err
		}
		if !ok {
			return transaction.TxOut{}, fmt.Errorf("%w: %s", ErrUnresolvedOutput, op)
		}
		return out, nil
	}

	for _, b := range l.chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.replayBlock(ctx, scratch, resolve, b); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrChainIntegrity, b.Index, err)
		}
	}

	replayed, err := scratch.Commitment(ctx)
	if err != nil {
		return err
	}
	live, err := l.utxos.Commitment(ctx)
	if err != nil {
		return err
	}
	if !replayed.Equal(live) {
		return fmt.Errorf("%w: replayed utxo set %s differs from live set %s",
			ErrChainIntegrity, replayed.Hex(), live.Hex())
	}

	return l.auditIndex(ctx)
}

// auditIndex checks that the block index holds every block of the chain
// under its height, with matching header fields, and nothing past the tip.
// Callers hold mu.
func (l *Ledger) auditIndex(ctx context.Context) error {
	for _, b := range l.chain {
		meta, err := l.index.GetBlock(ctx, b.Index)
		if err != nil {
			return fmt.Errorf("block index lookup at %d: %w", b.Index, err)
		}
		if meta == nil {
			return fmt.Errorf("%w: block index is missing height %d", ErrChainIntegrity, b.Index)
		}
		if meta.BlockHash != b.Hash || meta.PreviousHash != b.PreviousHash ||
			meta.MerkleRoot != b.MerkleRoot || meta.TxCount != len(b.Transactions) {
			return fmt.Errorf("%w: block index disagrees with block %d", ErrChainIntegrity, b.Index)
		}
	}

	latest, err := l.index.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("block index tip lookup: %w", err)
	}
	if tip := l.tip(); latest == nil || latest.Height != tip.Index || latest.BlockHash != tip.Hash {
		return fmt.Errorf("%w: block index tip does not match height %d", ErrChainIntegrity, tip.Index)
	}

	return nil
}

// replayBlock verifies and applies one block. Transactions are applied one
// at a time so later transactions may spend earlier outputs of the same
// block, exactly as commit does.
func (l *Ledger) replayBlock(ctx context.Context, scratch *utxo.Set, resolve outputResolver, b *block.Block) error {
	var fees, minted uint64
	coinbases := 0
	spent := make(map[utxo.Outpoint]struct{})

	for i, tx := range b.Transactions {
		if tx.IsCoinbase() {
			coinbases++
			if i != 0 {
				return fmt.Errorf("coinbase at position %d", i)
			}
			total, err := tx.OutputTotal()
			if err != nil {
				return err
			}
			minted = total
			if err := scratch.Apply(ctx, []*transaction.Transaction{tx}); err != nil {
				return err
			}
			continue
		}

		if err := checkStructure(tx); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		for _, in := range tx.Vin {
			op := utxo.OutpointOf(in)
			if _, dup := spent[op]; dup {
				return fmt.Errorf("tx %d: %w: %s", i, ErrDoubleSpend, op)
			}
			spent[op] = struct{}{}
		}

		inputTotal, err := verifySpend(ctx, tx, resolve)
		if err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		outputTotal, _ := tx.OutputTotal()
		fee := inputTotal - outputTotal
		if fee > math.MaxUint64-fees {
			return errors.New("fee total overflows")
		}
		fees += fee

		if err := scratch.Apply(ctx, []*transaction.Transaction{tx}); err != nil {
			return err
		}
	}

	if coinbases > 1 {
		return fmt.Errorf("%d coinbase transactions", coinbases)
	}

	limit := l.reward
	if b.Index == 0 {
		limit = 0
	}
	if fees > math.MaxUint64-limit {
		limit = math.MaxUint64
	} else {
		limit += fees
	}
	if minted > limit {
		return fmt.Errorf("coinbase mints %d, limit is %d", minted, limit)
	}

	return nil
}
