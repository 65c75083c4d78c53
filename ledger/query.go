package ledger

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/cache"
	"github.com/shruggr/rewardledger/merkle"
	"github.com/shruggr/rewardledger/multihash"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// TxLocation is where FindTransaction found a transaction. Height and
// BlockHash are zero for pending transactions.
type TxLocation struct {
	Transaction *transaction.Transaction
	Confirmed   bool
	Height      uint64
	BlockHash   chainhash.Hash
	Position    int
}

// Height returns the index of the tip
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip().Index
}

// Difficulty returns the number of leading zero hex characters new blocks need
func (l *Ledger) Difficulty() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.difficulty
}

// MiningReward returns the coinbase subsidy
func (l *Ledger) MiningReward() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.reward
}

// Miner returns the configured payout address
func (l *Ledger) Miner() wallet.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.miner
}

// SetMiner sets the payout address used when mining without an explicit one
func (l *Ledger) SetMiner(addr wallet.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.miner = addr
}

// Chain returns a copy of the block list. Blocks are shared and must not be
// modified.
func (l *Ledger) Chain() []*block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.chain)
}

// Tip returns the last block
func (l *Ledger) Tip() *block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip()
}

// Mempool returns a copy of the pending transactions in arrival order
func (l *Ledger) Mempool() []*transaction.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending := make([]*transaction.Transaction, len(l.mempool))
	for i, tx := range l.mempool {
		pending[i] = tx.Clone()
	}
	return pending
}

// MempoolSize returns the number of pending transactions
func (l *Ledger) MempoolSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.mempool)
}

// GetBalanceOfAddress sums the confirmed unspent outputs owned by addr
func (l *Ledger) GetBalanceOfAddress(ctx context.Context, addr wallet.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxos.Balance(ctx, addr)
}

// ListUTXOByAddress returns the confirmed unspent outputs owned by addr
func (l *Ledger) ListUTXOByAddress(ctx context.Context, addr wallet.Address) ([]utxo.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxos.ListByAddress(ctx, addr)
}

// SpendableUTXOs returns the outputs owned by addr that no pending
// transaction claims
func (l *Ledger) SpendableUTXOs(ctx context.Context, addr wallet.Address) ([]utxo.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.spendable(ctx, addr)
}

// GetBalanceConsideringMempool is the confirmed balance minus outputs
// claimed by pending transactions plus pending outputs paying addr
func (l *Ledger) GetBalanceConsideringMempool(ctx context.Context, addr wallet.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := l.spendable(ctx, addr)
	if err != nil {
		return 0, err
	}

	var total uint64
	add := func(v uint64) {
		if v > math.MaxUint64-total {
			total = math.MaxUint64
			return
		}
		total += v
	}

	for _, e := range entries {
		add(e.Output.Value)
	}
	for _, tx := range l.mempool {
		for _, out := range tx.Vout {
			if out.Address == addr {
				add(out.Value)
			}
		}
	}

	return total, nil
}

// spendable filters claimed outputs. Callers hold mu.
func (l *Ledger) spendable(ctx context.Context, addr wallet.Address) ([]utxo.Entry, error) {
	entries, err := l.utxos.ListByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	free := entries[:0]
	for _, e := range entries {
		if _, claimed := l.claimant(e.Outpoint); !claimed {
			free = append(free, e)
		}
	}
	return free, nil
}

// BlockByHash returns the block with the given hash
func (l *Ledger) BlockByHash(ctx context.Context, hash chainhash.Hash) (*block.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	meta, err := l.index.GetBlockByHash(ctx, hash)
	if err != nil {
		l.logger.Warn("block index lookup failed", "hash", transaction.HashHex(hash), "error", err)
	} else if meta != nil && meta.Height < uint64(len(l.chain)) && l.chain[meta.Height].Hash == hash {
		return l.chain[meta.Height], nil
	}

	for i := len(l.chain) - 1; i >= 0; i-- {
		if l.chain[i].Hash == hash {
			return l.chain[i], nil
		}
	}

	return nil, fmt.Errorf("%w: block %s", ErrNotFound, transaction.HashHex(hash))
}

// BlockAt returns the block at height
func (l *Ledger) BlockAt(height uint64) (*block.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if height >= uint64(len(l.chain)) {
		return nil, fmt.Errorf("%w: block at height %d", ErrNotFound, height)
	}
	return l.chain[height], nil
}

// FindTransaction looks txid up in the location cache, then in the chain,
// newest first, then in the mempool. A cached location that no longer
// holds txid is dropped.
func (l *Ledger) FindTransaction(txid chainhash.Hash) (*TxLocation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if loc, ok := l.txCache.Get(txid); ok {
		if loc.Height < uint64(len(l.chain)) {
			b := l.chain[loc.Height]
			if loc.Position < len(b.Transactions) && b.Transactions[loc.Position].ID() == txid {
				return confirmedAt(b, loc.Position), nil
			}
		}
		if err := l.txCache.Delete(txid); err != nil {
			l.logger.Warn("failed to drop stale location", "txid", transaction.HashHex(txid), "error", err)
		}
	}

	for h := len(l.chain) - 1; h >= 0; h-- {
		b := l.chain[h]
		for i, tx := range b.Transactions {
			if tx.ID() == txid {
				l.txCache.Put(txid, cache.Location{Height: b.Index, Position: i})
				return confirmedAt(b, i), nil
			}
		}
	}

	for i, tx := range l.mempool {
		if tx.ID() == txid {
			return &TxLocation{Transaction: tx.Clone(), Position: i}, nil
		}
	}

	return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transaction.HashHex(txid))
}

func confirmedAt(b *block.Block, pos int) *TxLocation {
	return &TxLocation{
		Transaction: b.Transactions[pos].Clone(),
		Confirmed:   true,
		Height:      b.Index,
		BlockHash:   b.Hash,
		Position:    pos,
	}
}

// MerkleProof returns the inclusion proof of a confirmed transaction and
// the block that holds it
func (l *Ledger) MerkleProof(txid chainhash.Hash) (*merkle.Proof, *block.Block, error) {
	loc, err := l.FindTransaction(txid)
	if err != nil {
		return nil, nil, err
	}
	if !loc.Confirmed {
		return nil, nil, fmt.Errorf("%w: transaction %s is pending", ErrNotFound, transaction.HashHex(txid))
	}

	b, err := l.BlockAt(loc.Height)
	if err != nil {
		return nil, nil, err
	}

	proof, err := merkle.BuildProof(b.TxIDs(), loc.Position)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build proof: %w", err)
	}
	return proof, b, nil
}

// UTXOCommitment is the BLAKE3 multihash of the confirmed set
func (l *Ledger) UTXOCommitment(ctx context.Context) (multihash.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxos.Commitment(ctx)
}
