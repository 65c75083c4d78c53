// Package service exposes the ledger's external call contracts: queries,
// wallet issuance, unsigned transaction construction with coin selection,
// signed submission, mining and the legacy single-shot transfer.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/ledger"
	"github.com/shruggr/rewardledger/merkle"
	"github.com/shruggr/rewardledger/miner"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// ErrInvalidRequest is returned for requests that are malformed before they
// reach the ledger
var ErrInvalidRequest = errors.New("invalid request")

// Service adapts a ledger to request/response calls
type Service struct {
	ledger *ledger.Ledger
	worker *miner.Worker
	logger *slog.Logger
}

// New creates a service. Mining goes through worker when it is non-nil and
// directly to the ledger otherwise.
func New(l *ledger.Ledger, worker *miner.Worker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: l,
		worker: worker,
		logger: logger.With("component", "service"),
	}
}

// Status summarises the chain
type Status struct {
	Height       uint64
	Difficulty   uint32
	Valid        bool
	MiningReward uint64
	Miner        wallet.Address
	Pending      int
	TipHash      chainhash.Hash
	Commitment   string
}

// Unsigned is a transaction ready for client-side signing. Every input
// signs SigningHash.
type Unsigned struct {
	Transaction *transaction.Transaction
	SigningHash chainhash.Hash
	InputTotal  uint64
	Change      uint64
	Fee         uint64
}

// Status reports height, difficulty and chain validity
func (s *Service) Status(ctx context.Context) (*Status, error) {
	commitment, err := s.ledger.UTXOCommitment(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Height:       s.ledger.Height(),
		Difficulty:   s.ledger.Difficulty(),
		Valid:        s.ledger.IsChainValid(),
		MiningReward: s.ledger.MiningReward(),
		Miner:        s.ledger.Miner(),
		Pending:      s.ledger.MempoolSize(),
		TipHash:      s.ledger.Tip().Hash,
		Commitment:   commitment.Hex(),
	}, nil
}

// Chain returns every block from genesis
func (s *Service) Chain() []*block.Block {
	return s.ledger.Chain()
}

// Block returns the block with the given hash
func (s *Service) Block(ctx context.Context, hash chainhash.Hash) (*block.Block, error) {
	return s.ledger.BlockByHash(ctx, hash)
}

// Balance returns the confirmed balance of addr
func (s *Service) Balance(ctx context.Context, addr wallet.Address) (uint64, error) {
	return s.ledger.GetBalanceOfAddress(ctx, addr)
}

// PendingBalance returns the balance of addr once the mempool confirms
func (s *Service) PendingBalance(ctx context.Context, addr wallet.Address) (uint64, error) {
	return s.ledger.GetBalanceConsideringMempool(ctx, addr)
}

// Mempool returns the pending transactions
func (s *Service) Mempool() []*transaction.Transaction {
	return s.ledger.Mempool()
}

// UTXOs lists the confirmed unspent outputs of addr
func (s *Service) UTXOs(ctx context.Context, addr wallet.Address) ([]utxo.Entry, error) {
	return s.ledger.ListUTXOByAddress(ctx, addr)
}

// Transaction finds a confirmed or pending transaction
func (s *Service) Transaction(txid chainhash.Hash) (*ledger.TxLocation, error) {
	return s.ledger.FindTransaction(txid)
}

// IssueWallet registers a client key when publicKeyHex is set and otherwise
// generates a key pair. Only generated pairs carry the private key, and it
// is never retained.
func (s *Service) IssueWallet(publicKeyHex string) (*wallet.KeyPair, error) {
	if publicKeyHex == "" {
		kp, err := wallet.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
		s.logger.Info("wallet issued", "address", kp.Address.String())
		return kp, nil
	}

	if _, err := wallet.ParsePublicKey(publicKeyHex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	addr, err := wallet.DeriveAddressHex(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	s.logger.Info("wallet registered", "address", addr.String())
	return &wallet.KeyPair{PublicKey: publicKeyHex, Address: addr}, nil
}

// BuildUnsigned selects spendable outputs of from, largest first, until
// they cover outputs plus fee, and returns the unsigned transaction with a
// change output back to from for any surplus
func (s *Service) BuildUnsigned(ctx context.Context, from wallet.Address, outputs []transaction.TxOut, fee uint64) (*Unsigned, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing source address", ErrInvalidRequest)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrInvalidRequest)
	}

	target := fee
	for i, out := range outputs {
		if out.Address == "" {
			return nil, fmt.Errorf("%w: output %d has no address", ErrInvalidRequest, i)
		}
		if out.Value > math.MaxUint64-target {
			return nil, fmt.Errorf("%w: output total overflows", ErrInvalidRequest)
		}
		target += out.Value
	}

	entries, err := s.ledger.SpendableUTXOs(ctx, from)
	if err != nil {
		return nil, err
	}
	selected, total, ok := selectCoins(entries, target)
	if !ok {
		return nil, fmt.Errorf("%w: %s has %d spendable, needs %d", ledger.ErrInsufficientFunds, from, total, target)
	}

	vin := make([]transaction.TxIn, len(selected))
	for i, e := range selected {
		vin[i] = transaction.TxIn{PrevTxID: e.Outpoint.TxID, PrevOutputIndex: e.Outpoint.Index}
	}

	vout := slices.Clone(outputs)
	change := total - target
	if change > 0 {
		vout = append(vout, transaction.TxOut{Address: from, Value: change})
	}

	tx := transaction.New(vin, vout)
	return &Unsigned{
		Transaction: tx,
		SigningHash: tx.SigningHash(),
		InputTotal:  total,
		Change:      change,
		Fee:         fee,
	}, nil
}

// selectCoins takes entries in descending value order until target is met.
// At least one entry is always taken. It returns the running total, which
// is the whole spendable amount when ok is false.
func selectCoins(entries []utxo.Entry, target uint64) ([]utxo.Entry, uint64, bool) {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b utxo.Entry) int {
		if c := cmp.Compare(b.Output.Value, a.Output.Value); c != 0 {
			return c
		}
		return a.Outpoint.Compare(b.Outpoint)
	})

	var total uint64
	for i, e := range sorted {
		if e.Output.Value > math.MaxUint64-total {
			total = math.MaxUint64
		} else {
			total += e.Output.Value
		}
		if total >= target {
			return sorted[:i+1], total, true
		}
	}
	return nil, total, false
}

// SubmitSigned rebuilds a signed transaction and queues it
func (s *Service) SubmitSigned(ctx context.Context, vin []transaction.TxIn, vout []transaction.TxOut) (chainhash.Hash, error) {
	if len(vin) == 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: no inputs", ledger.ErrMalformedTransaction)
	}

	tx := transaction.New(vin, vout)
	if err := s.ledger.QueueTransaction(ctx, tx); err != nil {
		return chainhash.Hash{}, err
	}

	txid := tx.ID()
	s.logger.Info("transaction submitted", "txid", transaction.HashHex(txid))
	return txid, nil
}

// Mine mines the mempool paying minerAddress, or the configured miner when
// it is empty. A given address also becomes the default for later calls,
// but this block pays minerAddress whatever other callers set meanwhile.
func (s *Service) Mine(ctx context.Context, minerAddress wallet.Address) (*block.Block, error) {
	if minerAddress != "" {
		s.ledger.SetMiner(minerAddress)
	}

	if s.worker != nil {
		return s.worker.Mine(ctx, minerAddress)
	}
	return s.ledger.MinePendingTransactions(ctx, minerAddress)
}

// Transfer builds, signs and immediately mines a single transaction paying
// amount to to from the key's address
func (s *Service) Transfer(ctx context.Context, privateKeyHex string, to wallet.Address, amount uint64) (*block.Block, *transaction.Transaction, error) {
	kp, err := wallet.KeyPairFromPrivate(privateKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	unsigned, err := s.BuildUnsigned(ctx, kp.Address, []transaction.TxOut{{Address: to, Value: amount}}, 0)
	if err != nil {
		return nil, nil, err
	}

	tx := unsigned.Transaction
	if err := tx.SignAll(kp.PrivateKey); err != nil {
		return nil, nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	for i, in := range tx.Vin {
		if !wallet.Verify(unsigned.SigningHash, in.Signature, in.PublicKey) {
			return nil, nil, fmt.Errorf("%w: input %d", ledger.ErrInvalidSignature, i)
		}
	}

	b, err := s.ledger.CommitTransaction(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("transfer committed",
		"txid", transaction.HashHex(tx.ID()),
		"from", kp.Address.String(),
		"to", to.String(),
		"amount", amount,
		"height", b.Index)
	return b, tx, nil
}

// Proof returns the merkle inclusion proof of a confirmed transaction
func (s *Service) Proof(txid chainhash.Hash) (*merkle.Proof, *block.Block, error) {
	return s.ledger.MerkleProof(txid)
}

// ValidateHistory replays the chain and checks every transaction
func (s *Service) ValidateHistory(ctx context.Context) error {
	return s.ledger.ValidateHistory(ctx)
}
