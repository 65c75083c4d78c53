package ledger

import (
	"log/slog"
	"time"

	"github.com/shruggr/rewardledger/cache"
	"github.com/shruggr/rewardledger/kvstore"
	"github.com/shruggr/rewardledger/metadata"
	"github.com/shruggr/rewardledger/wallet"
)

const (
	// DefaultDifficulty is the number of leading zero hex characters a block
	// hash needs
	DefaultDifficulty uint32 = 3
	// DefaultMiningReward is paid by every mined coinbase before fees
	DefaultMiningReward uint64 = 50
	// GenesisDifficulty applies to the genesis block whatever the chain
	// difficulty
	GenesisDifficulty uint32 = 1
	// DefaultTxCacheSize bounds the transaction location cache
	DefaultTxCacheSize = 4096
)

// Options configures a Ledger. Zero values fall back to defaults and
// in-memory backends.
type Options struct {
	Difficulty   uint32
	MiningReward uint64
	Miner        wallet.Address

	UTXOStore  kvstore.KVStore     // backing store for the confirmed UTXO set
	BlockIndex metadata.Store      // hash and height lookups
	TxCache    cache.LocationCache // txid to chain location

	Logger *slog.Logger
	Now    func() time.Time
}
