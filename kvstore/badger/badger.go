package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/shruggr/rewardledger/kvstore"
)

// Store is a BadgerDB-backed implementation of kvstore.KVStore
type Store struct {
	db *badger.DB
}

// Config holds configuration for BadgerDB
type Config struct {
	InMemory bool         // Keep all data in process memory
	DataDir  string       // Directory for data storage when not in memory
	Logger   *slog.Logger // Optional; badger logging is disabled when nil
}

// New creates a new BadgerDB-backed KVStore
func New(config *Config) (*Store, error) {
	var opts badger.Options
	switch {
	case config.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case config.DataDir != "":
		opts = badger.DefaultOptions(config.DataDir)
	default:
		return nil, fmt.Errorf("DataDir is required unless InMemory is set")
	}

	if config.Logger != nil {
		opts = opts.WithLogger(NewSlogAdapter(config.Logger))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// Get retrieves a value by key
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // Return nil for non-existent keys
	}
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Apply writes all ops in a single badger transaction
func (s *Store) Apply(ctx context.Context, ops []kvstore.Op) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			if op.Delete {
				err = txn.Delete(op.Key)
			} else {
				err = txn.Set(op.Key, op.Value)
			}
			if err != nil {
				return fmt.Errorf("failed to apply op on key %x: %w", op.Key, err)
			}
		}
		return nil
	})
}

// Close releases all BadgerDB resources
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
