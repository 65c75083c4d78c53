// Package utxo maintains the confirmed unspent-output set. Entries live in a
// kvstore.KVStore keyed by outpoint; an in-process address index serves
// balance and listing queries without scanning the whole set.
package utxo

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/shruggr/rewardledger/kvstore"
	"github.com/shruggr/rewardledger/multihash"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/wallet"
)

// Set is the confirmed UTXO set. It is not safe for concurrent mutation;
// the ledger serialises writers.
type Set struct {
	store     kvstore.KVStore
	byAddress map[wallet.Address]map[Outpoint]struct{}
	owner     map[Outpoint]wallet.Address
}

// NewSet creates an empty set on top of store
func NewSet(store kvstore.KVStore) *Set {
	return &Set{
		store:     store,
		byAddress: make(map[wallet.Address]map[Outpoint]struct{}),
		owner:     make(map[Outpoint]wallet.Address),
	}
}

// Len returns the number of unspent outputs
func (s *Set) Len() int {
	return len(s.owner)
}

// Has reports whether op is unspent
func (s *Set) Has(op Outpoint) bool {
	_, ok := s.owner[op]
	return ok
}

// Get returns the unspent output at op
func (s *Set) Get(ctx context.Context, op Outpoint) (transaction.TxOut, bool, error) {
	if !s.Has(op) {
		return transaction.TxOut{}, false, nil
	}

	raw, err := s.store.Get(ctx, op.Bytes())
	if err != nil {
		return transaction.TxOut{}, false, fmt.Errorf("failed to read utxo %s: %w", op, err)
	}
	if raw == nil {
		return transaction.TxOut{}, false, fmt.Errorf("utxo %s indexed but missing from store", op)
	}

	out, err := decodeOutput(raw)
	if err != nil {
		return transaction.TxOut{}, false, fmt.Errorf("failed to decode utxo %s: %w", op, err)
	}
	return out, true, nil
}

// Outpoints lists the outpoints owned by addr in a stable order
func (s *Set) Outpoints(addr wallet.Address) []Outpoint {
	ops := make([]Outpoint, 0, len(s.byAddress[addr]))
	for op := range s.byAddress[addr] {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, Outpoint.Compare)
	return ops
}

// ListByAddress returns every unspent output owned by addr
func (s *Set) ListByAddress(ctx context.Context, addr wallet.Address) ([]Entry, error) {
	ops := s.Outpoints(addr)
	entries := make([]Entry, 0, len(ops))

	for _, op := range ops {
		out, ok, err := s.Get(ctx, op)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, Entry{Outpoint: op, Output: out})
		}
	}

	return entries, nil
}

// Balance sums the unspent outputs owned by addr
func (s *Set) Balance(ctx context.Context, addr wallet.Address) (uint64, error) {
	entries, err := s.ListByAddress(ctx, addr)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, e := range entries {
		if e.Output.Value > math.MaxUint64-total {
			return math.MaxUint64, nil
		}
		total += e.Output.Value
	}
	return total, nil
}

// Apply spends every input and creates every output of txs, in order, as
// one atomic store write. Inputs that reference missing outputs are
// ignored; callers validate before applying.
func (s *Set) Apply(ctx context.Context, txs []*transaction.Transaction) error {
	// nil marks a spend
	overlay := make(map[Outpoint]*transaction.TxOut)
	order := make([]Outpoint, 0)

	touch := func(op Outpoint, out *transaction.TxOut) {
		if _, seen := overlay[op]; !seen {
			order = append(order, op)
		}
		overlay[op] = out
	}

	for _, tx := range txs {
		for _, in := range tx.Vin {
			touch(OutpointOf(in), nil)
		}

		txid := tx.ID()
		for i := range tx.Vout {
			out := tx.Vout[i]
			touch(Outpoint{TxID: txid, Index: uint32(i)}, &out)
		}
	}

	ops := make([]kvstore.Op, 0, len(order))
	for _, op := range order {
		out := overlay[op]
		if out == nil {
			if s.Has(op) {
				ops = append(ops, kvstore.Op{Key: op.Bytes(), Delete: true})
			}
			continue
		}
		ops = append(ops, kvstore.Op{Key: op.Bytes(), Value: encodeOutput(*out)})
	}

	if err := s.store.Apply(ctx, ops); err != nil {
		return fmt.Errorf("failed to apply utxo delta: %w", err)
	}

	for _, op := range order {
		if out := overlay[op]; out == nil {
			s.unindex(op)
		} else {
			s.unindex(op)
			s.index(op, out.Address)
		}
	}

	return nil
}

// Entries returns the whole set ordered by outpoint
func (s *Set) Entries(ctx context.Context) ([]Entry, error) {
	ops := make([]Outpoint, 0, len(s.owner))
	for op := range s.owner {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, Outpoint.Compare)

	entries := make([]Entry, 0, len(ops))
	for _, op := range ops {
		out, _, err := s.Get(ctx, op)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Outpoint: op, Output: out})
	}
	return entries, nil
}

// Commitment is a BLAKE3 multihash over every entry in outpoint order.
// Two sets with the same contents yield the same commitment regardless of
// the backing store.
func (s *Set) Commitment(ctx context.Context) (multihash.Digest, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}

	b := multihash.NewBuilder()
	for _, e := range entries {
		b.Write(e.Outpoint.Bytes())
		b.Write(encodeOutput(e.Output))
	}
	return b.Sum()
}

func (s *Set) index(op Outpoint, addr wallet.Address) {
	set, ok := s.byAddress[addr]
	if !ok {
		set = make(map[Outpoint]struct{})
		s.byAddress[addr] = set
	}
	set[op] = struct{}{}
	s.owner[op] = addr
}

func (s *Set) unindex(op Outpoint) {
	addr, ok := s.owner[op]
	if !ok {
		return
	}
	delete(s.owner, op)

	set := s.byAddress[addr]
	delete(set, op)
	if len(set) == 0 {
		delete(s.byAddress, addr)
	}
}
