// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the monitor configuration from the environment and
// optional .env files discovered by walking up from the working directory.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full environment-driven configuration.
type Config struct {
	RPCURL         string `envconfig:"BTC_RPC_API_URL"`
	RPCProxy       string `envconfig:"BTC_RPC_PROXY"`
	PollIntervalMS int    `envconfig:"BITCOIN_POLL_INTERVAL_MS" default:"1000"`

	ParseRawBlocks        bool `envconfig:"PARSE_RAW_BLOCKS"`
	ResolveInputAddresses bool `envconfig:"RESOLVE_INPUT_ADDRESSES"`

	MaxEventQueueSize int `envconfig:"MAX_EVENT_QUEUE_SIZE" default:"2000"`

	WatchAddressesFile string `envconfig:"WATCH_ADDRESSES_FILE"`
	WatchAddresses     string `envconfig:"WATCH_ADDRESSES"`

	WorkerID      string   `envconfig:"WORKER_ID" default:"worker-1"`
	WorkerMembers []string `envconfig:"WORKER_MEMBERS"`

	CMCAPIKey string `envconfig:"API_KEY_COINMARKETCAP"`

	CacheValiditySeconds int     `envconfig:"CUR_CACHE_VALIDITY_PERIOD" default:"3600"`
	CacheTTLJitter       float64 `envconfig:"CUR_CACHE_TTL_JITTER" default:"0.1"`
	NegativeTTLSeconds   int     `envconfig:"CUR_NEGATIVE_CACHE_TTL_SECONDS" default:"120"`
	CBFailureThreshold   int     `envconfig:"CUR_CB_FAILURE_THRESHOLD" default:"3"`
	CBOpenMS             int     `envconfig:"CUR_CB_OPEN_MS" default:"30000"`

	SinksEnabled          []string `envconfig:"SINKS_ENABLED" default:"stdout"`
	SinkFilePath          string   `envconfig:"SINK_FILE_PATH"`
	SinkWebhookURL        string   `envconfig:"SINK_WEBHOOK_URL"`
	SinkWebhookHeaders    string   `envconfig:"SINK_WEBHOOK_HEADERS"`
	SinkWebhookMaxRetries int      `envconfig:"SINK_WEBHOOK_MAX_RETRIES" default:"3"`
	SinkKafkaBrokers      string   `envconfig:"SINK_KAFKA_BROKERS"`
	SinkKafkaTopic        string   `envconfig:"SINK_KAFKA_TOPIC"`
	SinkNATSURL           string   `envconfig:"SINK_NATS_URL"`
	SinkNATSSubject       string   `envconfig:"SINK_NATS_SUBJECT"`

	FeatureFlagsFile     string `envconfig:"FEATURE_FLAGS_FILE"`
	FeatureFlagsReloadMS int    `envconfig:"FEATURE_FLAGS_RELOAD_MS" default:"2000"`

	AppEnv  string `envconfig:"APP_ENV"`
	NodeEnv string `envconfig:"NODE_ENV"`

	// Root is the discovered project root; not env-driven.
	Root string `ignored:"true"`
}

// Environment returns the effective runtime environment name.
func (c *Config) Environment() string {
	if c.AppEnv != "" {
		return c.AppEnv
	}
	if c.NodeEnv != "" {
		return c.NodeEnv
	}
	return "development"
}

// IsDevelopment reports whether the effective environment is development.
func (c *Config) IsDevelopment() bool {
	return c.Environment() == "development"
}

// RateCachePath returns the persisted rate cache location under the project
// root.
func (c *Config) RateCachePath() string {
	return filepath.Join(c.Root, "cache", "currency_rates.json")
}

// DefaultWatchFile returns the watch-list location used when none is
// configured.
func (c *Config) DefaultWatchFile() string {
	return filepath.Join(c.Root, "addresses.json")
}

// rootMarkers are the files whose presence marks a project root during
// discovery.
var rootMarkers = []string{"go.mod", "package.json"}

// findRoot walks up from dir until it finds a directory containing a root
// marker or any .env* file. It falls back to dir itself.
func findRoot(dir string) string {
	current := dir
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}
		if matches, _ := filepath.Glob(filepath.Join(current, ".env*")); len(matches) > 0 {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// loadDotEnv loads the .env file family from root without overriding
// variables that are already set, so the process environment and earlier
// files win.
func loadDotEnv(root, env string) {
	names := []string{
		".env",
		".env.local",
		".env." + env,
		".env." + env + ".local",
	}
	for _, name := range names {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warnf("failed to load %s: %v", path, err)
			continue
		}
		log.Debugf("loaded environment file %s", path)
	}
}

// Load discovers the project root, loads the .env family and parses the
// environment into a validated Config.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	root := findRoot(cwd)

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("NODE_ENV")
	}
	if env == "" {
		env = "development"
	}
	loadDotEnv(root, env)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Root = root
	if cfg.WatchAddressesFile == "" {
		cfg.WatchAddressesFile = cfg.DefaultWatchFile()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants a running monitor depends on. Failures are
// fatal at startup.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("BTC_RPC_API_URL is required")
	}
	u, err := url.Parse(c.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("BTC_RPC_API_URL must be an http or https URL, got %q", c.RPCURL)
	}
	if c.PollIntervalMS < 1 {
		return fmt.Errorf("BITCOIN_POLL_INTERVAL_MS must be >= 1, got %d", c.PollIntervalMS)
	}
	if c.MaxEventQueueSize < 1 {
		return fmt.Errorf("MAX_EVENT_QUEUE_SIZE must be >= 1, got %d", c.MaxEventQueueSize)
	}
	if c.CacheTTLJitter < 0 {
		c.CacheTTLJitter = 0
	}
	if c.CacheTTLJitter > 0.5 {
		c.CacheTTLJitter = 0.5
	}
	for _, kind := range c.SinksEnabled {
		switch strings.TrimSpace(kind) {
		case "stdout", "file", "webhook", "kafka", "nats", "":
		default:
			return fmt.Errorf("unknown sink kind %q in SINKS_ENABLED", kind)
		}
	}
	if sliceContains(c.SinksEnabled, "file") && c.SinkFilePath == "" {
		return errors.New("SINK_FILE_PATH is required when the file sink is enabled")
	}
	if sliceContains(c.SinksEnabled, "webhook") && c.SinkWebhookURL == "" {
		return errors.New("SINK_WEBHOOK_URL is required when the webhook sink is enabled")
	}
	return nil
}

func sliceContains(list []string, want string) bool {
	for _, s := range list {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}
