// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toole-brendan/btcwatch/watch"
)

// TestValidate covers the startup invariants.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCURL:            "http://127.0.0.1:8332",
			PollIntervalMS:    1000,
			MaxEventQueueSize: 2000,
			SinksEnabled:      []string{"stdout"},
		}
	}

	t.Run("OK", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("MissingRPCURL", func(t *testing.T) {
		cfg := valid()
		cfg.RPCURL = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("BadScheme", func(t *testing.T) {
		cfg := valid()
		cfg.RPCURL = "ws://node"
		require.Error(t, cfg.Validate())
	})

	t.Run("BadPollInterval", func(t *testing.T) {
		cfg := valid()
		cfg.PollIntervalMS = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("JitterClamped", func(t *testing.T) {
		cfg := valid()
		cfg.CacheTTLJitter = 0.9
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 0.5, cfg.CacheTTLJitter)
	})

	t.Run("UnknownSink", func(t *testing.T) {
		cfg := valid()
		cfg.SinksEnabled = []string{"carrier-pigeon"}
		require.Error(t, cfg.Validate())
	})

	t.Run("FileSinkNeedsPath", func(t *testing.T) {
		cfg := valid()
		cfg.SinksEnabled = []string{"file"}
		require.Error(t, cfg.Validate())
	})

	t.Run("WebhookNeedsURL", func(t *testing.T) {
		cfg := valid()
		cfg.SinksEnabled = []string{"stdout", "webhook"}
		require.Error(t, cfg.Validate())
	})
}

// TestEnvironment tests the APP_ENV/NODE_ENV precedence.
func TestEnvironment(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "development", cfg.Environment())
	assert.True(t, cfg.IsDevelopment())

	cfg.NodeEnv = "production"
	assert.Equal(t, "production", cfg.Environment())

	cfg.AppEnv = "staging"
	assert.Equal(t, "staging", cfg.Environment())
	assert.False(t, cfg.IsDevelopment())
}

// TestParseWatchCSV tests the addr[:label] fallback form.
func TestParseWatchCSV(t *testing.T) {
	got := parseWatchCSV(" a1:Cold Storage , a2 ,, a3:x ")
	assert.Equal(t, []watch.WatchedAddress{
		{Address: "a1", Label: "Cold Storage"},
		{Address: "a2"},
		{Address: "a3", Label: "x"},
	}, got)
}

// TestLoadWatchedAddresses tests file loading, CSV fallback and invalid
// entry skipping.
func TestLoadWatchedAddresses(t *testing.T) {
	dir := t.TempDir()

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(dir, "addresses.json")
		require.NoError(t, os.WriteFile(path, []byte(
			`[{"address":"1111111111111111111114oLvT2","label":"burn"},
			  {"address":"definitely-invalid"},
			  {"address":"BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4"}]`), 0o644))

		cfg := &Config{WatchAddressesFile: path}
		got, err := cfg.LoadWatchedAddresses()
		require.NoError(t, err)
		require.Len(t, got, 2, "invalid entries are skipped")
		assert.Equal(t, "1111111111111111111114oLvT2", got[0].Address)
		assert.Equal(t, "burn", got[0].Label)
		assert.Equal(t, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
			got[1].Address, "bech32 entries are normalized to lowercase")
	})

	t.Run("CSVFallback", func(t *testing.T) {
		cfg := &Config{
			WatchAddressesFile: filepath.Join(dir, "missing.json"),
			WatchAddresses:     "1111111111111111111114oLvT2:burn",
		}
		got, err := cfg.LoadWatchedAddresses()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "burn", got[0].Label)
	})

	t.Run("MissingEverything", func(t *testing.T) {
		cfg := &Config{WatchAddressesFile: filepath.Join(dir, "missing.json")}
		_, err := cfg.LoadWatchedAddresses()
		require.Error(t, err)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{nope`), 0o644))
		cfg := &Config{WatchAddressesFile: path}
		_, err := cfg.LoadWatchedAddresses()
		require.Error(t, err)
	})
}

// TestFindRoot tests marker-based project root discovery.
func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x"), 0o644))

	assert.Equal(t, root, findRoot(nested))

	t.Run("EnvFileMarker", func(t *testing.T) {
		envRoot := t.TempDir()
		inner := filepath.Join(envRoot, "deep")
		require.NoError(t, os.MkdirAll(inner, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(envRoot, ".env.local"), nil, 0o644))
		assert.Equal(t, envRoot, findRoot(inner))
	})
}

// TestLoadFromEnv tests the envconfig mapping end to end.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BTC_RPC_API_URL", "http://127.0.0.1:8332")
	t.Setenv("BITCOIN_POLL_INTERVAL_MS", "250")
	t.Setenv("SINKS_ENABLED", "stdout,kafka")
	t.Setenv("WORKER_MEMBERS", "w1,w2,w3")
	t.Setenv("PARSE_RAW_BLOCKS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.PollIntervalMS)
	assert.Equal(t, []string{"stdout", "kafka"}, cfg.SinksEnabled)
	assert.Equal(t, []string{"w1", "w2", "w3"}, cfg.WorkerMembers)
	assert.True(t, cfg.ParseRawBlocks)
	assert.Equal(t, "worker-1", cfg.WorkerID)
	assert.NotEmpty(t, cfg.Root)
	assert.Equal(t, filepath.Join(cfg.Root, "cache", "currency_rates.json"),
		cfg.RateCachePath())
}
