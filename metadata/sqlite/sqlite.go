package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shruggr/rewardledger/metadata"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Store is a SQLite-backed implementation of metadata.Store
type Store struct {
	db *sql.DB
}

// Config holds configuration for SQLite
type Config struct {
	DBPath string // Path to SQLite database file, or MemoryPath
}

// New creates a new SQLite-backed metadata store
func New(config *Config) (*Store, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("DBPath is required")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Each connection to :memory: is a separate database
	if config.DBPath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		height        INTEGER PRIMARY KEY,
		block_hash    BLOB NOT NULL,
		previous_hash BLOB NOT NULL,
		merkle_root   BLOB NOT NULL,
		tx_count      INTEGER NOT NULL,
		timestamp     INTEGER NOT NULL,
		bits          INTEGER NOT NULL,
		nonce         INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_blocks_hash ON blocks(block_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}

// PutBlock stores block metadata
func (s *Store) PutBlock(ctx context.Context, block *metadata.BlockMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocks (height, block_hash, previous_hash, merkle_root, tx_count, timestamp, bits, nonce)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		block.Height, block.BlockHash[:], block.PreviousHash[:], block.MerkleRoot[:],
		block.TxCount, block.Timestamp, block.Bits, int64(block.Nonce),
	)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

const selectBlock = `SELECT height, block_hash, previous_hash, merkle_root, tx_count, timestamp, bits, nonce FROM blocks`

// GetBlock retrieves block metadata by height
func (s *Store) GetBlock(ctx context.Context, height uint64) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx, selectBlock+` WHERE height = ?`, height)
	meta, err := scanBlock(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query block: %w", err)
	}
	return meta, nil
}

// GetBlockByHash retrieves block metadata by block hash
func (s *Store) GetBlockByHash(ctx context.Context, blockHash chainhash.Hash) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx, selectBlock+` WHERE block_hash = ?`, blockHash[:])
	meta, err := scanBlock(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query block by hash: %w", err)
	}
	return meta, nil
}

// GetLatestBlock returns the highest block stored
func (s *Store) GetLatestBlock(ctx context.Context) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx, selectBlock+` ORDER BY height DESC LIMIT 1`)
	meta, err := scanBlock(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest block: %w", err)
	}
	return meta, nil
}

// scanBlock returns nil, nil when the row does not exist
func scanBlock(row *sql.Row) (*metadata.BlockMeta, error) {
	var meta metadata.BlockMeta
	var blockHash, previousHash, merkleRoot []byte
	var nonce int64

	err := row.Scan(&meta.Height, &blockHash, &previousHash, &merkleRoot,
		&meta.TxCount, &meta.Timestamp, &meta.Bits, &nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	copy(meta.BlockHash[:], blockHash)
	copy(meta.PreviousHash[:], previousHash)
	copy(meta.MerkleRoot[:], merkleRoot)
	meta.Nonce = uint64(nonce)

	return &meta, nil
}

// Close releases all database resources
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
