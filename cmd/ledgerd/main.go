package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shruggr/rewardledger/api"
	cachememory "github.com/shruggr/rewardledger/cache/memory"
	"github.com/shruggr/rewardledger/config"
	"github.com/shruggr/rewardledger/kvstore"
	"github.com/shruggr/rewardledger/kvstore/badger"
	kvmemory "github.com/shruggr/rewardledger/kvstore/memory"
	"github.com/shruggr/rewardledger/ledger"
	"github.com/shruggr/rewardledger/metadata"
	metamemory "github.com/shruggr/rewardledger/metadata/memory"
	"github.com/shruggr/rewardledger/metadata/sqlite"
	"github.com/shruggr/rewardledger/miner"
	"github.com/shruggr/rewardledger/service"
	"github.com/shruggr/rewardledger/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags; set flags override the config file
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address")
	storageType := flag.String("storage", "", "UTXO storage: memory or badger")
	indexType := flag.String("index", "", "Block index: memory or sqlite")
	difficulty := flag.Uint("difficulty", 0, "Leading zero hex characters required per block")
	reward := flag.Uint64("reward", 0, "Coinbase mining reward")
	minerAddr := flag.String("miner", "", "Default miner payout address")
	mineInterval := flag.Duration("mine-interval", 0, "Auto-mine pending transactions at this interval")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.HTTP.Addr = *addr
		case "storage":
			cfg.Storage.UTXO = *storageType
		case "index":
			cfg.Storage.Index = *indexType
		case "difficulty":
			cfg.Ledger.Difficulty = uint32(*difficulty)
		case "reward":
			cfg.Ledger.MiningReward = *reward
		case "miner":
			cfg.Ledger.MinerAddress = *minerAddr
		case "mine-interval":
			cfg.Miner.Interval = *mineInterval
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting ledgerd",
		"difficulty", cfg.Ledger.Difficulty,
		"reward", cfg.Ledger.MiningReward,
		"utxo_storage", cfg.Storage.UTXO,
		"index", cfg.Storage.Index)

	// Initialize storage based on type
	var store kvstore.KVStore
	switch cfg.Storage.UTXO {
	case config.StorageMemory:
		store = kvmemory.New()
	case config.StorageBadger:
		store, err = badger.New(&badger.Config{InMemory: true, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to initialize BadgerDB: %w", err)
		}
	}
	defer store.Close()

	var index metadata.Store
	switch cfg.Storage.Index {
	case config.StorageMemory:
		index = metamemory.New()
	case config.StorageSQLite:
		index, err = sqlite.New(&sqlite.Config{DBPath: sqlite.MemoryPath})
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite index: %w", err)
		}
	}
	defer index.Close()

	txCache, err := cachememory.New(cfg.Ledger.TxCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create tx cache: %w", err)
	}

	l, err := ledger.New(ledger.Options{
		Difficulty:   cfg.Ledger.Difficulty,
		MiningReward: cfg.Ledger.MiningReward,
		Miner:        wallet.Address(cfg.Ledger.MinerAddress),
		UTXOStore:    store,
		BlockIndex:   index,
		TxCache:      txCache,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	worker := miner.NewWorker(l, miner.Config{
		Interval:  cfg.Miner.Interval,
		QueueSize: cfg.Miner.QueueSize,
	}, logger)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("failed to start miner: %w", err)
	}
	defer worker.Stop()

	server := api.NewServer(service.New(l, worker, logger), cfg.HTTP.Addr, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("ledgerd started", "height", l.Height(), "genesis", l.Chain()[0].HashHex())

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Status ticker to show we're alive
	statusTicker := time.NewTicker(5 * time.Minute)
	defer statusTicker.Stop()

	// Main event loop
	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("failed to shut down HTTP server: %w", err)
			}
			return nil

		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil

		case <-statusTicker.C:
			logger.Info("status",
				"height", l.Height(),
				"pending", l.MempoolSize(),
				"valid", l.IsChainValid())
		}
	}
}
