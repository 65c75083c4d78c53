// Package config loads ledgerd settings from a YAML file on top of defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// Storage backends
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
	StorageSQLite = "sqlite"
)

// Config holds configuration for the ledger daemon
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Miner   MinerConfig   `yaml:"miner"`
	Log     LogConfig     `yaml:"log"`
}

// LedgerConfig holds chain parameters
type LedgerConfig struct {
	Difficulty   uint32 `yaml:"difficulty"`
	MiningReward uint64 `yaml:"mining_reward"`
	MinerAddress string `yaml:"miner_address"`
	TxCacheSize  int    `yaml:"tx_cache_size"`
}

// StorageConfig selects the in-process backends. Every backend keeps its
// data in memory.
type StorageConfig struct {
	UTXO  string `yaml:"utxo"`  // memory or badger
	Index string `yaml:"index"` // memory or sqlite
}

// HTTPConfig configures the API listener
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MinerConfig configures the mining worker
type MinerConfig struct {
	Interval  time.Duration `yaml:"interval"` // zero disables auto-mining
	QueueSize int           `yaml:"queue_size"`
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Difficulty:   3,
			MiningReward: 50,
			TxCacheSize:  4096,
		},
		Storage: StorageConfig{
			UTXO:  StorageBadger,
			Index: StorageSQLite,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Miner: MinerConfig{
			QueueSize: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with
func (cfg *Config) Validate() error {
	if cfg.Ledger.Difficulty == 0 || cfg.Ledger.Difficulty > 64 {
		return fmt.Errorf("%w: difficulty must be between 1 and 64", ErrInvalidConfig)
	}
	if cfg.Ledger.MiningReward == 0 {
		return fmt.Errorf("%w: mining_reward must be positive", ErrInvalidConfig)
	}
	if cfg.Ledger.TxCacheSize <= 0 {
		return fmt.Errorf("%w: tx_cache_size must be positive", ErrInvalidConfig)
	}

	switch cfg.Storage.UTXO {
	case StorageMemory, StorageBadger:
	default:
		return fmt.Errorf("%w: unknown utxo storage %q (use memory or badger)", ErrInvalidConfig, cfg.Storage.UTXO)
	}
	switch cfg.Storage.Index {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("%w: unknown index storage %q (use memory or sqlite)", ErrInvalidConfig, cfg.Storage.Index)
	}

	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("%w: http addr is required", ErrInvalidConfig)
	}
	if cfg.Miner.Interval < 0 {
		return fmt.Errorf("%w: miner interval must not be negative", ErrInvalidConfig)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, cfg.Log.Format)
	}

	return nil
}

// SlogLevel parses the configured log level
func (cfg *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.Log.Level)
	}
}

// NewLogger builds the process logger described by the log settings
func (cfg *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
