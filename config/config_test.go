package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(3), cfg.Ledger.Difficulty)
	assert.Equal(t, uint64(50), cfg.Ledger.MiningReward)
	assert.Equal(t, StorageBadger, cfg.Storage.UTXO)
	assert.Equal(t, StorageSQLite, cfg.Storage.Index)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
ledger:
  difficulty: 2
  miner_address: "0xabc"
storage:
  utxo: memory
miner:
  interval: 30s
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint32(2), cfg.Ledger.Difficulty)
	assert.Equal(t, uint64(50), cfg.Ledger.MiningReward)
	assert.Equal(t, "0xabc", cfg.Ledger.MinerAddress)
	assert.Equal(t, StorageMemory, cfg.Storage.UTXO)
	assert.Equal(t, StorageSQLite, cfg.Storage.Index)
	assert.Equal(t, 30*time.Second, cfg.Miner.Interval)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("ledger:\n  dificulty: 2\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9000\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero difficulty":    func(c *Config) { c.Ledger.Difficulty = 0 },
		"huge difficulty":    func(c *Config) { c.Ledger.Difficulty = 65 },
		"zero reward":        func(c *Config) { c.Ledger.MiningReward = 0 },
		"no cache":           func(c *Config) { c.Ledger.TxCacheSize = 0 },
		"unknown utxo store": func(c *Config) { c.Storage.UTXO = "redis" },
		"unknown index":      func(c *Config) { c.Storage.Index = "postgres" },
		"no addr":            func(c *Config) { c.HTTP.Addr = "" },
		"negative interval":  func(c *Config) { c.Miner.Interval = -time.Second },
		"bad level":          func(c *Config) { c.Log.Level = "loud" },
		"bad format":         func(c *Config) { c.Log.Format = "xml" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"k":"v"`)
}
