package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// outputResolver looks up the output an input spends. It returns
// ErrUnresolvedOutput (or ErrDoubleSpend) when the output is unavailable.
type outputResolver func(ctx context.Context, op utxo.Outpoint) (transaction.TxOut, error)

// QueueTransaction admits tx to the mempool or rejects it. Checks run in
// order: structure, per-input resolution against the mempool-adjusted view
// with ownership and signature, balance, and finally a mempool-wide
// double-spend scan. Admission is all or nothing.
func (l *Ledger) QueueTransaction(ctx context.Context, tx *transaction.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAdmission(ctx, tx); err != nil {
		l.logger.Debug("transaction rejected", "error", err)
		return err
	}

	pending := tx.Clone()
	txid := pending.ID()
	l.mempool = append(l.mempool, pending)
	for _, in := range pending.Vin {
		l.claims[utxo.OutpointOf(in)] = txid
	}

	l.logger.Debug("transaction queued",
		"txid", transaction.HashHex(txid),
		"inputs", len(pending.Vin),
		"outputs", len(pending.Vout),
		"mempool", len(l.mempool))

	return nil
}

// ValidateTransaction runs the admission checks without queueing
func (l *Ledger) ValidateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.checkAdmission(ctx, tx)
}

// checkAdmission runs every admission rule. Callers hold mu.
func (l *Ledger) checkAdmission(ctx context.Context, tx *transaction.Transaction) error {
	if err := checkStructure(tx); err != nil {
		return err
	}

	if _, err := verifySpend(ctx, tx, l.pendingView); err != nil {
		return err
	}

	for _, in := range tx.Vin {
		op := utxo.OutpointOf(in)
		for _, pending := range l.mempool {
			for _, other := range pending.Vin {
				if utxo.OutpointOf(other) == op {
					return fmt.Errorf("%w: %s already spent by pending %s",
						ErrDoubleSpend, op, transaction.HashHex(pending.ID()))
				}
			}
		}
	}

	return nil
}

// pendingView resolves against the confirmed set minus outputs claimed by
// pending transactions. Callers hold mu.
func (l *Ledger) pendingView(ctx context.Context, op utxo.Outpoint) (transaction.TxOut, error) {
	if txid, claimed := l.claimant(op); claimed {
		return transaction.TxOut{}, fmt.Errorf("%w: %s claimed by pending %s",
			ErrDoubleSpend, op, transaction.HashHex(txid))
	}
	return l.confirmedView(ctx, op)
}

// confirmedView resolves against the confirmed set only. Callers hold mu.
func (l *Ledger) confirmedView(ctx context.Context, op utxo.Outpoint) (transaction.TxOut, error) {
	out, ok, err := l.utxos.Get(ctx, op)
	if err != nil {
		return transaction.TxOut{}, err
	}
	if !ok {
		return transaction.TxOut{}, fmt.Errorf("%w: %s", ErrUnresolvedOutput, op)
	}
	return out, nil
}

// checkStructure validates shape only: outputs present, no repeated
// input, bounded field sizes and no value overflow
func checkStructure(tx *transaction.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformedTransaction)
	}
	if len(tx.Vout) == 0 {
		return fmt.Errorf("%w: no outputs", ErrMalformedTransaction)
	}

	if err := tx.CheckFieldLengths(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	seen := make(map[utxo.Outpoint]struct{}, len(tx.Vin))
	for i, in := range tx.Vin {
		op := utxo.OutpointOf(in)
		if _, dup := seen[op]; dup {
			return fmt.Errorf("%w: input %d repeats %s", ErrMalformedTransaction, i, op)
		}
		seen[op] = struct{}{}
	}

	for i, out := range tx.Vout {
		if out.Address == "" {
			return fmt.Errorf("%w: output %d has no address", ErrMalformedTransaction, i)
		}
	}

	if _, err := tx.OutputTotal(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	return nil
}

// verifySpend resolves every input, checks ownership and signature, and
// requires inputs to cover outputs. It returns the input total. Coinbase
// transactions skip all of it.
func verifySpend(ctx context.Context, tx *transaction.Transaction, resolve outputResolver) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}

	signingHash := tx.SigningHash()
	var inputTotal uint64

	for i, in := range tx.Vin {
		op := utxo.OutpointOf(in)

		out, err := resolve(ctx, op)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		owner, err := wallet.DeriveAddressHex(in.PublicKey)
		if err != nil || owner != out.Address {
			return 0, fmt.Errorf("%w: input %d spends %s owned by %s", ErrOwnershipMismatch, i, op, out.Address)
		}

		if !wallet.Verify(signingHash, in.Signature, in.PublicKey) {
			return 0, fmt.Errorf("%w: input %d", ErrInvalidSignature, i)
		}

		if out.Value > math.MaxUint64-inputTotal {
			return 0, fmt.Errorf("%w: input total overflows", ErrMalformedTransaction)
		}
		inputTotal += out.Value
	}

	outputTotal, err := tx.OutputTotal()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if inputTotal < outputTotal {
		return 0, fmt.Errorf("%w: inputs %d < outputs %d", ErrInsufficientFunds, inputTotal, outputTotal)
	}

	return inputTotal, nil
}
