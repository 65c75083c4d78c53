package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// MinePendingTransactions mines every spending transaction pending at call time into
// a block whose coinbase pays reward plus fees to minerAddress, or to the
// configured miner when minerAddress is empty. Transactions queued while the
// proof-of-work search runs stay pending for the next block.
func (l *Ledger) MinePendingTransactions(ctx context.Context, minerAddress wallet.Address) (*block.Block, error) {
	l.produceMu.Lock()
	defer l.produceMu.Unlock()

	l.mu.RLock()
	payout := minerAddress
	if payout == "" {
		payout = l.miner
	}
	if payout == "" {
		l.mu.RUnlock()
		return nil, ErrNoMinerConfigured
	}

	tip := l.tip()
	// A block mints through its own coinbase only. Pending coinbases are
	// left out and dropped when the block commits.
	snapshot := make([]*transaction.Transaction, 0, len(l.mempool))
	for _, tx := range l.mempool {
		if !tx.IsCoinbase() {
			snapshot = append(snapshot, tx)
		}
	}

	fee, err := l.totalFee(ctx, snapshot)
	l.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	reward := l.reward
	if fee > math.MaxUint64-reward {
		return nil, fmt.Errorf("%w: coinbase value overflows", ErrMalformedTransaction)
	}

	height := tip.Index + 1
	coinbase := transaction.NewCoinbase(payout, reward+fee, uint32(height))
	txs := append([]*transaction.Transaction{coinbase}, snapshot...)

	l.logger.Info("mining block",
		"height", height,
		"pending", len(snapshot),
		"fee", fee,
		"miner", payout.String())

	return l.produce(ctx, tip, txs)
}

// AddBlock links txs to the tip, mines them at the chain difficulty and
// applies them to the UTXO set. The transactions are trusted: no admission
// checks run here beyond requiring an encodable shape.
func (l *Ledger) AddBlock(ctx context.Context, txs []*transaction.Transaction) (*block.Block, error) {
	for i, tx := range txs {
		if tx == nil {
			return nil, fmt.Errorf("%w: tx %d is nil", ErrMalformedTransaction, i)
		}
		if err := tx.CheckFieldLengths(); err != nil {
			return nil, fmt.Errorf("%w: tx %d: %v", ErrMalformedTransaction, i, err)
		}
	}

	l.produceMu.Lock()
	defer l.produceMu.Unlock()

	l.mu.RLock()
	tip := l.tip()
	l.mu.RUnlock()

	return l.produce(ctx, tip, txs)
}

// CommitTransaction validates tx with the admission rules and mines it
// alone into the next block without a coinbase. The inputs stay reserved
// against concurrent admissions until the block commits or mining fails.
func (l *Ledger) CommitTransaction(ctx context.Context, tx *transaction.Transaction) (*block.Block, error) {
	l.produceMu.Lock()
	defer l.produceMu.Unlock()

	l.mu.Lock()
	if err := l.checkAdmission(ctx, tx); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	committed := tx.Clone()
	txid := committed.ID()
	for _, in := range committed.Vin {
		l.reserved[utxo.OutpointOf(in)] = txid
	}
	tip := l.tip()
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		for _, in := range committed.Vin {
			delete(l.reserved, utxo.OutpointOf(in))
		}
		l.mu.Unlock()
	}()

	return l.produce(ctx, tip, []*transaction.Transaction{committed})
}

// produce mines a block on top of tip and commits it. Callers hold
// produceMu, which keeps tip current for the duration.
func (l *Ledger) produce(ctx context.Context, tip *block.Block, txs []*transaction.Transaction) (*block.Block, error) {
	l.mu.RLock()
	difficulty := l.difficulty
	l.mu.RUnlock()

	b := block.New(tip.Index+1, tip.Hash, txs, difficulty, l.now().UnixMilli())
	if err := b.Mine(ctx, difficulty); err != nil {
		l.logger.Warn("mining aborted", "height", b.Index, "error", err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.commit(ctx, b); err != nil {
		return nil, err
	}

	return b, nil
}

// totalFee sums max(0, inputs - outputs) over txs, resolving inputs against
// the confirmed set. Callers hold mu.
func (l *Ledger) totalFee(ctx context.Context, txs []*transaction.Transaction) (uint64, error) {
	var total uint64
	for _, tx := range txs {
		fee, err := l.fee(ctx, tx)
		if err != nil {
			return 0, err
		}
		if fee > math.MaxUint64-total {
			return 0, fmt.Errorf("%w: fee total overflows", ErrMalformedTransaction)
		}
		total += fee
	}
	return total, nil
}

func (l *Ledger) fee(ctx context.Context, tx *transaction.Transaction) (uint64, error) {
	return feeOf(ctx, tx, l.confirmedView)
}

// feeOf returns max(0, inputs - outputs). Coinbase transactions pay none.
func feeOf(ctx context.Context, tx *transaction.Transaction, resolve outputResolver) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}

	var in uint64
	for _, input := range tx.Vin {
		out, err := resolve(ctx, utxo.OutpointOf(input))
		if err != nil {
			return 0, err
		}
		if out.Value > math.MaxUint64-in {
			return 0, fmt.Errorf("%w: input total overflows", ErrMalformedTransaction)
		}
		in += out.Value
	}

	outTotal, err := tx.OutputTotal()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if in <= outTotal {
		return 0, nil
	}
	return in - outTotal, nil
}
