package ledger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/cache"
	cachememory "github.com/shruggr/rewardledger/cache/memory"
	kvbadger "github.com/shruggr/rewardledger/kvstore/badger"
	"github.com/shruggr/rewardledger/merkle"
	"github.com/shruggr/rewardledger/metadata"
	metamemory "github.com/shruggr/rewardledger/metadata/memory"
	"github.com/shruggr/rewardledger/metadata/sqlite"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	if opts.Difficulty == 0 {
		opts.Difficulty = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func newKey(t *testing.T) *wallet.KeyPair {
	t.Helper()
	kp, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

// fund mines one empty block paying the reward to addr and returns the
// coinbase outpoint
func fund(t *testing.T, l *Ledger, addr wallet.Address) utxo.Outpoint {
	t.Helper()
	b, err := l.MinePendingTransactions(context.Background(), addr)
	require.NoError(t, err)
	return utxo.Outpoint{TxID: b.Transactions[0].ID(), Index: 0}
}

func spend(t *testing.T, kp *wallet.KeyPair, from []utxo.Outpoint, outs ...transaction.TxOut) *transaction.Transaction {
	t.Helper()
	vin := make([]transaction.TxIn, len(from))
	for i, op := range from {
		vin[i] = transaction.TxIn{PrevTxID: op.TxID, PrevOutputIndex: op.Index}
	}
	tx := transaction.New(vin, outs)
	require.NoError(t, tx.SignAll(kp.PrivateKey))
	return tx
}

func TestGenesis(t *testing.T) {
	l := newTestLedger(t, Options{})

	chain := l.Chain()
	require.Len(t, chain, 1)

	genesis := chain[0]
	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, block.RootHash, genesis.PreviousHash)
	assert.Equal(t, GenesisDifficulty, genesis.Bits)
	assert.True(t, genesis.HasProofOfWork())

	require.Len(t, genesis.Transactions, 1)
	coinbase := genesis.Transactions[0]
	assert.True(t, coinbase.IsCoinbase())
	assert.Equal(t, wallet.SystemAddress, coinbase.Vout[0].Address)
	assert.Equal(t, uint64(0), coinbase.Vout[0].Value)

	assert.True(t, l.IsChainValid())
	assert.Equal(t, uint64(0), l.Height())
	assert.Empty(t, l.Mempool())
}

func TestQueueTransactionAndDoubleSpend(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob := newKey(t), newKey(t)

	a := fund(t, l, alice.Address)

	tx := spend(t, alice, []utxo.Outpoint{a},
		transaction.TxOut{Address: bob.Address, Value: 60},
		transaction.TxOut{Address: alice.Address, Value: 40})
	require.NoError(t, l.QueueTransaction(ctx, tx))
	require.Len(t, l.Mempool(), 1)

	again := spend(t, alice, []utxo.Outpoint{a},
		transaction.TxOut{Address: bob.Address, Value: 100})
	err := l.QueueTransaction(ctx, again)
	require.ErrorIs(t, err, ErrDoubleSpend)
	assert.ErrorIs(t, err, ErrUnresolvedOutput)
	assert.Len(t, l.Mempool(), 1)

	confirmed, err := l.GetBalanceOfAddress(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), confirmed)

	pending, err := l.GetBalanceConsideringMempool(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), pending)

	pending, err = l.GetBalanceConsideringMempool(ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), pending)

	spendable, err := l.SpendableUTXOs(ctx, alice.Address)
	require.NoError(t, err)
	assert.Empty(t, spendable)
}

func TestQueueTransactionRejections(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob := newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	tests := []struct {
		name string
		tx   func() *transaction.Transaction
		want error
	}{
		{
			name: "nil",
			tx:   func() *transaction.Transaction { return nil },
			want: ErrMalformedTransaction,
		},
		{
			name: "no outputs",
			tx: func() *transaction.Transaction {
				return spend(t, alice, []utxo.Outpoint{a})
			},
			want: ErrMalformedTransaction,
		},
		{
			name: "repeated input",
			tx: func() *transaction.Transaction {
				return spend(t, alice, []utxo.Outpoint{a, a}, transaction.TxOut{Address: bob.Address, Value: 1})
			},
			want: ErrMalformedTransaction,
		},
		{
			name: "unknown output",
			tx: func() *transaction.Transaction {
				return spend(t, alice, []utxo.Outpoint{{Index: 7}}, transaction.TxOut{Address: bob.Address, Value: 1})
			},
			want: ErrUnresolvedOutput,
		},
		{
			name: "wrong owner",
			tx: func() *transaction.Transaction {
				return spend(t, bob, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 1})
			},
			want: ErrOwnershipMismatch,
		},
		{
			name: "tampered after signing",
			tx: func() *transaction.Transaction {
				tx := spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 1})
				tx.Vout[0].Value = 2
				return tx
			},
			want: ErrInvalidSignature,
		},
		{
			name: "overspend",
			tx: func() *transaction.Transaction {
				return spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 101})
			},
			want: ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.QueueTransaction(ctx, tt.tx())
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsRejection(err))
			assert.Empty(t, l.Mempool())
		})
	}
}

func TestMinePendingTransactionsCollectsFees(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 50})
	alice, bob, minerKey := newKey(t), newKey(t), newKey(t)

	first := fund(t, l, alice.Address)
	second := fund(t, l, alice.Address)
	assert.NotEqual(t, first, second)

	require.NoError(t, l.QueueTransaction(ctx, spend(t, alice, []utxo.Outpoint{first},
		transaction.TxOut{Address: bob.Address, Value: 45})))
	require.NoError(t, l.QueueTransaction(ctx, spend(t, alice, []utxo.Outpoint{second},
		transaction.TxOut{Address: bob.Address, Value: 45})))

	b, err := l.MinePendingTransactions(ctx, minerKey.Address)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 3)

	coinbase := b.Transactions[0]
	assert.True(t, coinbase.IsCoinbase())
	assert.Equal(t, minerKey.Address, coinbase.Vout[0].Address)
	assert.Equal(t, uint64(60), coinbase.Vout[0].Value)

	assert.Empty(t, l.Mempool())
	assert.Equal(t, b, l.Tip())

	balance, err := l.GetBalanceOfAddress(ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), balance)

	balance, err = l.GetBalanceOfAddress(ctx, alice.Address)
	require.NoError(t, err)
	assert.Zero(t, balance)

	assert.True(t, l.IsChainValid())
	require.NoError(t, l.ValidateHistory(ctx))
}

func TestMineRequiresMiner(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{})

	_, err := l.MinePendingTransactions(ctx, "")
	require.ErrorIs(t, err, ErrNoMinerConfigured)

	minerKey := newKey(t)
	l.SetMiner(minerKey.Address)
	assert.Equal(t, minerKey.Address, l.Miner())

	b, err := l.MinePendingTransactions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, minerKey.Address, b.Transactions[0].Vout[0].Address)
}

func TestCancelledMiningLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t, Options{Difficulty: 1, MiningReward: 100})
	alice, bob := newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	require.NoError(t, l.QueueTransaction(context.Background(),
		spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 100})))

	// Raise difficulty far beyond what a single context check interval can
	// satisfy so the search is still running when the context is checked.
	l.mu.Lock()
	l.difficulty = 16
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.MinePendingTransactions(ctx, bob.Address)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, uint64(1), l.Height())
	assert.Len(t, l.Mempool(), 1)
	assert.True(t, l.IsChainValid())
}

func TestTransactionsQueuedDuringMiningStayPending(t *testing.T) {
	ctx := context.Background()
	alice, bob := newKey(t), newKey(t)

	// now runs after the mempool snapshot and before the nonce search, so
	// the hook queues a transaction while the block is being produced
	var hook func()
	l := newTestLedger(t, Options{
		MiningReward: 100,
		Now: func() time.Time {
			if h := hook; h != nil {
				hook = nil
				h()
			}
			return time.Now()
		},
	})
	first := fund(t, l, alice.Address)
	second := fund(t, l, alice.Address)

	early := spend(t, alice, []utxo.Outpoint{first}, transaction.TxOut{Address: bob.Address, Value: 100})
	require.NoError(t, l.QueueTransaction(ctx, early))

	late := spend(t, alice, []utxo.Outpoint{second}, transaction.TxOut{Address: bob.Address, Value: 90})
	var lateErr error
	hook = func() { lateErr = l.QueueTransaction(ctx, late) }

	b, err := l.MinePendingTransactions(ctx, bob.Address)
	require.NoError(t, err)
	require.NoError(t, lateErr)

	require.Len(t, b.Transactions, 2)
	assert.Equal(t, early.ID(), b.Transactions[1].ID())

	pending := l.Mempool()
	require.Len(t, pending, 1)
	assert.Equal(t, late.ID(), pending[0].ID())

	// The late transaction pays its 10 fee into the next block.
	next, err := l.MinePendingTransactions(ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), next.Transactions[0].Vout[0].Value)
	assert.Empty(t, l.Mempool())
}

func TestConcurrentReadsDuringMining(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{Difficulty: 3})
	minerKey := newKey(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = l.Height()
				_, _ = l.GetBalanceOfAddress(ctx, minerKey.Address)
				_ = l.Mempool()
			}
		}()
	}

	for i := 0; i < 3; i++ {
		_, err := l.MinePendingTransactions(ctx, minerKey.Address)
		require.NoError(t, err)
	}
	wg.Wait()

	balance, err := l.GetBalanceOfAddress(ctx, minerKey.Address)
	require.NoError(t, err)
	assert.Equal(t, 3*DefaultMiningReward, balance)
	assert.True(t, l.IsChainValid())
}

func TestChainValidityDetectsTampering(t *testing.T) {
	ctx := context.Background()

	tamper := map[string]func(l *Ledger){
		"nonce": func(l *Ledger) { l.chain[1].Nonce++ },
		"previous hash": func(l *Ledger) {
			l.chain[2].PreviousHash = l.chain[0].Hash
		},
		"transactions": func(l *Ledger) {
			l.chain[1].Transactions = append(l.chain[1].Transactions,
				transaction.NewCoinbase(wallet.SystemAddress, 1000, 99))
		},
		"genesis link": func(l *Ledger) {
			l.chain[0].PreviousHash = l.chain[1].Hash
		},
	}

	for name, mutate := range tamper {
		t.Run(name, func(t *testing.T) {
			l := newTestLedger(t, Options{})
			minerKey := newKey(t)
			fund(t, l, minerKey.Address)
			fund(t, l, minerKey.Address)
			require.True(t, l.IsChainValid())

			mutate(l)

			assert.False(t, l.IsChainValid())
			assert.ErrorIs(t, l.ValidateChain(), ErrChainIntegrity)
			assert.ErrorIs(t, l.ValidateHistory(ctx), ErrChainIntegrity)
		})
	}
}

func TestAddBlockTrustsTransactions(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 50})
	mallory := newKey(t)

	forged := transaction.NewCoinbase(mallory.Address, 1_000_000, 1)
	b, err := l.AddBlock(ctx, []*transaction.Transaction{forged})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Index)

	balance, err := l.GetBalanceOfAddress(ctx, mallory.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), balance)

	assert.True(t, l.IsChainValid())
	assert.ErrorIs(t, l.ValidateHistory(ctx), ErrChainIntegrity)
}

func TestAddBlockRejectsOversizedFields(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 50})

	long := wallet.Address(strings.Repeat("a", transaction.MaxFieldLength+1))

	_, err := l.AddBlock(ctx, []*transaction.Transaction{transaction.NewCoinbase(long, 1, 1)})
	assert.ErrorIs(t, err, ErrMalformedTransaction)
	_, err = l.AddBlock(ctx, []*transaction.Transaction{nil})
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	assert.Equal(t, uint64(0), l.Height())
	require.NoError(t, l.ValidateHistory(ctx))
}

func TestQueuedCoinbaseIsNotMined(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob, mallory := newKey(t), newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	require.NoError(t, l.QueueTransaction(ctx, transaction.NewCoinbase(mallory.Address, 1000, 2)))
	tx := spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 90})
	require.NoError(t, l.QueueTransaction(ctx, tx))
	require.Equal(t, 2, l.MempoolSize())

	b, err := l.MinePendingTransactions(ctx, bob.Address)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 2)
	assert.Equal(t, bob.Address, b.Transactions[0].Vout[0].Address)
	assert.Equal(t, uint64(110), b.Transactions[0].Vout[0].Value)
	assert.Equal(t, tx.ID(), b.Transactions[1].ID())
	assert.Empty(t, l.Mempool())

	balance, err := l.GetBalanceOfAddress(ctx, mallory.Address)
	require.NoError(t, err)
	assert.Zero(t, balance)
	require.NoError(t, l.ValidateHistory(ctx))
}

func TestAddBlockEvictsConflictingMempool(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob := newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	pending := spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 100})
	require.NoError(t, l.QueueTransaction(ctx, pending))

	conflicting := spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: alice.Address, Value: 100})
	_, err := l.AddBlock(ctx, []*transaction.Transaction{conflicting})
	require.NoError(t, err)

	assert.Empty(t, l.Mempool())
	balance, err := l.GetBalanceOfAddress(ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)
}

func TestCommitTransaction(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob := newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	tx := spend(t, alice, []utxo.Outpoint{a},
		transaction.TxOut{Address: bob.Address, Value: 30},
		transaction.TxOut{Address: alice.Address, Value: 70})

	b, err := l.CommitTransaction(ctx, tx)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, tx.ID(), b.Transactions[0].ID())
	assert.Equal(t, uint64(2), l.Height())

	balance, err := l.GetBalanceOfAddress(ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), balance)

	_, err = l.CommitTransaction(ctx, tx)
	assert.ErrorIs(t, err, ErrUnresolvedOutput)
	assert.Empty(t, l.reserved)
	require.NoError(t, l.ValidateHistory(ctx))
}

func TestFindTransactionAndMerkleProof(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{MiningReward: 100})
	alice, bob := newKey(t), newKey(t)
	a := fund(t, l, alice.Address)

	tx := spend(t, alice, []utxo.Outpoint{a}, transaction.TxOut{Address: bob.Address, Value: 99})
	require.NoError(t, l.QueueTransaction(ctx, tx))

	loc, err := l.FindTransaction(tx.ID())
	require.NoError(t, err)
	assert.False(t, loc.Confirmed)

	_, _, err = l.MerkleProof(tx.ID())
	require.ErrorIs(t, err, ErrNotFound)

	b, err := l.MinePendingTransactions(ctx, bob.Address)
	require.NoError(t, err)

	loc, err = l.FindTransaction(tx.ID())
	require.NoError(t, err)
	assert.True(t, loc.Confirmed)
	assert.Equal(t, b.Index, loc.Height)
	assert.Equal(t, b.Hash, loc.BlockHash)
	assert.Equal(t, 1, loc.Position)

	proof, holder, err := l.MerkleProof(tx.ID())
	require.NoError(t, err)
	assert.Equal(t, b.Hash, holder.Hash)
	assert.True(t, merkle.VerifyProof(proof, b.MerkleRoot))

	found, err := l.BlockByHash(ctx, b.Hash)
	require.NoError(t, err)
	assert.Equal(t, b, found)

	_, err = l.FindTransaction(transaction.NewCoinbase(bob.Address, 1, 1234).ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindTransactionDropsStaleLocation(t *testing.T) {
	ctx := context.Background()
	locations, err := cachememory.New(16)
	require.NoError(t, err)
	l := newTestLedger(t, Options{MiningReward: 100, TxCache: locations})
	alice := newKey(t)
	op := fund(t, l, alice.Address)

	unknown := transaction.NewCoinbase(alice.Address, 7, 99).ID()
	require.NoError(t, locations.Put(unknown, cache.Location{Height: 1, Position: 0}))
	_, err = l.FindTransaction(unknown)
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := locations.Get(unknown)
	assert.False(t, ok)

	// A wrong location for a confirmed transaction is replaced by the real one.
	require.NoError(t, locations.Put(op.TxID, cache.Location{Height: 0, Position: 0}))
	loc, err := l.FindTransaction(op.TxID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loc.Height)
	cached, ok := locations.Get(op.TxID)
	require.True(t, ok)
	assert.Equal(t, cache.Location{Height: 1, Position: 0}, cached)

	require.NoError(t, l.ValidateHistory(ctx))
}

func TestValidateHistoryAuditsBlockIndex(t *testing.T) {
	ctx := context.Background()
	index := metamemory.New()
	l := newTestLedger(t, Options{MiningReward: 100, BlockIndex: index})
	alice := newKey(t)
	fund(t, l, alice.Address)
	require.NoError(t, l.ValidateHistory(ctx))

	tip := l.Chain()[1]
	require.NoError(t, index.PutBlock(ctx, &metadata.BlockMeta{
		Height:       tip.Index,
		BlockHash:    tip.PreviousHash,
		PreviousHash: tip.PreviousHash,
		MerkleRoot:   tip.MerkleRoot,
		TxCount:      len(tip.Transactions),
	}))
	err := l.ValidateHistory(ctx)
	assert.ErrorIs(t, err, ErrChainIntegrity)
	assert.Contains(t, err.Error(), "block index")

	require.NoError(t, index.PutBlock(ctx, &metadata.BlockMeta{
		Height:       tip.Index,
		BlockHash:    tip.Hash,
		PreviousHash: tip.PreviousHash,
		MerkleRoot:   tip.MerkleRoot,
		TxCount:      len(tip.Transactions),
	}))
	require.NoError(t, l.ValidateHistory(ctx))

	require.NoError(t, index.PutBlock(ctx, &metadata.BlockMeta{Height: tip.Index + 1}))
	assert.ErrorIs(t, l.ValidateHistory(ctx), ErrChainIntegrity)
}

func TestPersistentBackends(t *testing.T) {
	ctx := context.Background()

	store, err := kvbadger.New(&kvbadger.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := sqlite.New(&sqlite.Config{DBPath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	l := newTestLedger(t, Options{UTXOStore: store, BlockIndex: index, MiningReward: 100})
	reference := newTestLedger(t, Options{MiningReward: 100})
	alice := newKey(t)

	op := fund(t, l, alice.Address)
	require.NoError(t, l.ValidateHistory(ctx))

	meta, err := index.GetLatestBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, uint64(1), meta.Height)

	found, err := l.BlockByHash(ctx, meta.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, op.TxID, found.Transactions[0].ID())

	// Same contents in a different backend give the same commitment.
	mined := l.Chain()
	_, err = reference.AddBlock(ctx, mined[1].Transactions)
	require.NoError(t, err)

	got, err := l.UTXOCommitment(ctx)
	require.NoError(t, err)
	want, err := reference.UTXOCommitment(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(want))
}
