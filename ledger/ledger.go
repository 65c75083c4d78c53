// Package ledger owns the block chain, the confirmed UTXO set and the
// mempool of pending transactions.
//
// Every mutation of {chain, utxo set, mempool} happens under one write lock,
// and block production (mining, AddBlock, CommitTransaction) is serialised
// by a second lock so the tip and the confirmed set cannot move between
// building a block and committing it. The proof-of-work search itself runs
// without the state lock, so reads and admissions continue while mining.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/cache"
	cachememory "github.com/shruggr/rewardledger/cache/memory"
	kvmemory "github.com/shruggr/rewardledger/kvstore/memory"
	"github.com/shruggr/rewardledger/metadata"
	metamemory "github.com/shruggr/rewardledger/metadata/memory"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// Ledger is a single-node UTXO chain
type Ledger struct {
	produceMu sync.Mutex
	mu        sync.RWMutex

	chain   []*block.Block
	mempool []*transaction.Transaction
	utxos   *utxo.Set

	// claims maps outpoints referenced by mempool inputs to the claiming txid
	claims map[utxo.Outpoint]chainhash.Hash
	// reserved holds inputs of a legacy transfer while it is being mined
	reserved map[utxo.Outpoint]chainhash.Hash

	difficulty uint32
	reward     uint64
	miner      wallet.Address

	index   metadata.Store
	txCache cache.LocationCache
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a ledger holding only the genesis block
func New(opts Options) (*Ledger, error) {
	if opts.Difficulty == 0 {
		opts.Difficulty = DefaultDifficulty
	}
	if opts.MiningReward == 0 {
		opts.MiningReward = DefaultMiningReward
	}
	if opts.UTXOStore == nil {
		opts.UTXOStore = kvmemory.New()
	}
	if opts.BlockIndex == nil {
		opts.BlockIndex = metamemory.New()
	}
	if opts.TxCache == nil {
		c, err := cachememory.New(DefaultTxCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create tx cache: %w", err)
		}
		opts.TxCache = c
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Ledger{
		utxos:      utxo.NewSet(opts.UTXOStore),
		claims:     make(map[utxo.Outpoint]chainhash.Hash),
		reserved:   make(map[utxo.Outpoint]chainhash.Hash),
		difficulty: opts.Difficulty,
		reward:     opts.MiningReward,
		miner:      opts.Miner,
		index:      opts.BlockIndex,
		txCache:    opts.TxCache,
		logger:     opts.Logger.With("component", "ledger"),
		now:        opts.Now,
	}

	if err := l.createGenesisBlock(context.Background()); err != nil {
		return nil, err
	}

	return l, nil
}

// createGenesisBlock mines the zero-value system coinbase at genesis
// difficulty and seeds the UTXO set with its output
func (l *Ledger) createGenesisBlock(ctx context.Context) error {
	coinbase := transaction.NewCoinbase(wallet.SystemAddress, 0, 0)
	genesis := block.New(0, block.RootHash, []*transaction.Transaction{coinbase}, GenesisDifficulty, l.now().UnixMilli())

	if err := genesis.Mine(ctx, GenesisDifficulty); err != nil {
		return fmt.Errorf("failed to mine genesis block: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(ctx, genesis)
}

// commit applies a mined block. Callers hold mu for writing.
func (l *Ledger) commit(ctx context.Context, b *block.Block) error {
	if err := l.utxos.Apply(ctx, b.Transactions); err != nil {
		return fmt.Errorf("failed to apply block %d: %w", b.Index, err)
	}

	l.chain = append(l.chain, b)

	meta := &metadata.BlockMeta{
		Height:       b.Index,
		BlockHash:    b.Hash,
		PreviousHash: b.PreviousHash,
		MerkleRoot:   b.MerkleRoot,
		TxCount:      len(b.Transactions),
		Timestamp:    b.Timestamp,
		Bits:         b.Bits,
		Nonce:        b.Nonce,
	}
	if err := l.index.PutBlock(ctx, meta); err != nil {
		// The chain stays authoritative; lookups fall back to a scan.
		l.logger.Error("failed to index block", "height", b.Index, "error", err)
	}

	mined := make(map[chainhash.Hash]struct{}, len(b.Transactions))
	for i, tx := range b.Transactions {
		txid := tx.ID()
		mined[txid] = struct{}{}
		l.txCache.Put(txid, cache.Location{Height: b.Index, Position: i})
	}

	l.pruneMempool(mined)

	l.logger.Info("block committed",
		"height", b.Index,
		"hash", b.HashHex(),
		"txs", len(b.Transactions),
		"nonce", b.Nonce)

	return nil
}

// pruneMempool drops mined transactions and pending coinbases, and evicts
// pending transactions whose inputs the new block consumed. Callers hold mu
// for writing.
func (l *Ledger) pruneMempool(mined map[chainhash.Hash]struct{}) {
	kept := l.mempool[:0]
	claims := make(map[utxo.Outpoint]chainhash.Hash, len(l.claims))

	for _, tx := range l.mempool {
		txid := tx.ID()
		if _, ok := mined[txid]; ok {
			continue
		}
		if tx.IsCoinbase() {
			l.logger.Warn("dropping pending coinbase", "txid", transaction.HashHex(txid))
			continue
		}

		conflict := false
		for _, in := range tx.Vin {
			if !l.utxos.Has(utxo.OutpointOf(in)) {
				conflict = true
				break
			}
		}
		if conflict {
			l.logger.Warn("evicting pending transaction spent by committed block",
				"txid", transaction.HashHex(txid))
			continue
		}

		kept = append(kept, tx)
		for _, in := range tx.Vin {
			claims[utxo.OutpointOf(in)] = txid
		}
	}

	for i := len(kept); i < len(l.mempool); i++ {
		l.mempool[i] = nil
	}
	l.mempool = kept
	l.claims = claims
}

// tip returns the last block. Callers hold mu.
func (l *Ledger) tip() *block.Block {
	return l.chain[len(l.chain)-1]
}

// claimant returns the pending txid that already claims op, if any.
// Callers hold mu.
func (l *Ledger) claimant(op utxo.Outpoint) (chainhash.Hash, bool) {
	if txid, ok := l.claims[op]; ok {
		return txid, true
	}
	txid, ok := l.reserved[op]
	return txid, ok
}
