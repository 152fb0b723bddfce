// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Cache tuning defaults.
const (
	// DefaultBaseTTL is how long a fetched rate stays fresh.
	DefaultBaseTTL = time.Hour

	// DefaultTTLJitter spreads effective TTLs by this fraction of the
	// base TTL so a fleet does not refresh in lockstep.
	DefaultTTLJitter = 0.1

	// MaxTTLJitter caps the configurable jitter fraction.
	MaxTTLJitter = 0.5

	// DefaultNegativeTTL is how long a failed lookup suppresses refetch.
	DefaultNegativeTTL = 120 * time.Second

	// DefaultCBFailureThreshold is the consecutive-failure count that
	// opens the circuit.
	DefaultCBFailureThreshold = 3

	// DefaultCBOpenWindow is how long an opened circuit rejects fetches.
	DefaultCBOpenWindow = 30 * time.Second

	// fetchTimeout bounds a single provider call.
	fetchTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned while the failure circuit breaker is open and
// no stale rate is available.
var ErrCircuitOpen = errors.New("currency provider circuit open")

// Config tunes the cache.
type Config struct {
	BaseTTL            time.Duration
	TTLJitter          float64
	NegativeTTL        time.Duration
	CBFailureThreshold int
	CBOpenWindow       time.Duration
	DefaultBase        string
	DefaultQuote       string
	FilePath           string
}

// normalize fills zero fields with defaults and clamps the jitter.
func (c *Config) normalize() {
	if c.BaseTTL <= 0 {
		c.BaseTTL = DefaultBaseTTL
	}
	if c.TTLJitter < 0 {
		c.TTLJitter = 0
	}
	if c.TTLJitter > MaxTTLJitter {
		c.TTLJitter = MaxTTLJitter
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	if c.CBFailureThreshold <= 0 {
		c.CBFailureThreshold = DefaultCBFailureThreshold
	}
	if c.CBOpenWindow <= 0 {
		c.CBOpenWindow = DefaultCBOpenWindow
	}
	if c.DefaultBase == "" {
		c.DefaultBase = "BTC"
	}
	if c.DefaultQuote == "" {
		c.DefaultQuote = "USD"
	}
}

// memEntry is an in-memory cached rate.
type memEntry struct {
	rate     Rate
	cachedAt time.Time
}

// negEntry is an in-memory cached failure.
type negEntry struct {
	message    string
	statusCode int
	cachedAt   time.Time
	ttl        time.Duration
}

// call is a single-flight slot: concurrent callers for the same pair await
// the one outstanding fetch.
type call struct {
	done chan struct{}
	rate *Rate
	err  error
}

// Cache is the layered rate cache. Memory entries die with the process;
// file entries persist and serve as stale fallbacks during outages.
type Cache struct {
	provider Provider
	cfg      Config
	store    *fileStore

	mtx                 sync.Mutex
	mem                 map[string]memEntry
	neg                 map[string]negEntry
	inflight            map[string]*call
	consecutiveFailures int
	circuitOpenUntil    time.Time

	now func() time.Time
}

// NewCache creates a cache over the given provider.
func NewCache(provider Provider, cfg Config) *Cache {
	cfg.normalize()
	return &Cache{
		provider: provider,
		cfg:      cfg,
		store:    newFileStore(cfg.FilePath),
		mem:      make(map[string]memEntry),
		neg:      make(map[string]negEntry),
		inflight: make(map[string]*call),
		now:      time.Now,
	}
}

// pairKey builds the canonical BASE_QUOTE cache key.
func pairKey(base, quote string) string {
	return strings.ToUpper(base) + "_" + strings.ToUpper(quote)
}

// effectiveTTL returns the base TTL scaled by a uniform jitter factor, at
// least one second. A fresh value is drawn per call so cache entries expire
// spread out instead of in a refresh storm.
func (c *Cache) effectiveTTL() time.Duration {
	jitter := c.cfg.TTLJitter
	factor := 1 + jitter*(2*rand.Float64()-1)
	secs := math.Floor(c.cfg.BaseTTL.Seconds() * factor)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// GetPair resolves the configured default pair, typically BTC/USD.
func (c *Cache) GetPair(ctx context.Context) (*Rate, error) {
	return c.GetRate(ctx, c.cfg.DefaultBase, c.cfg.DefaultQuote)
}

// GetUSDRate returns the BTC/USD rate, downgrading any failure to zero so
// activity enrichment can proceed without fiat values.
func (c *Cache) GetUSDRate(ctx context.Context) float64 {
	rate, err := c.GetRate(ctx, "BTC", "USD")
	if err != nil {
		log.Warnf("usd rate unavailable, skipping enrichment: %v", err)
		return 0
	}
	return rate.Rate
}

// Ping checks provider health.
func (c *Cache) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx)
}

// GetRate resolves a rate through the cache layers: fresh memory, fresh
// file, negative cache, circuit breaker, in-flight fetch, provider.
func (c *Cache) GetRate(ctx context.Context, base, quote string) (*Rate, error) {
	key := pairKey(base, quote)
	ttl := c.effectiveTTL()
	now := c.now()

	c.mtx.Lock()

	// Fresh memory entry.
	if entry, ok := c.mem[key]; ok && now.Sub(entry.cachedAt) <= ttl {
		c.mtx.Unlock()
		rate := entry.rate
		return &rate, nil
	}

	// Fresh file entry populates memory.
	if rate, cachedAt, ok := c.store.getRate(c.provider.Name(), key); ok &&
		now.Sub(cachedAt) <= ttl {
		c.mem[key] = memEntry{rate: *rate, cachedAt: cachedAt}
		c.mtx.Unlock()
		return rate, nil
	}

	// Active negative entry: serve stale if we have it, else replay the
	// cached failure.
	if neg, ok := c.neg[key]; ok && now.Sub(neg.cachedAt) <= neg.ttl {
		c.mtx.Unlock()
		if stale, _, ok := c.store.getRate(c.provider.Name(), key); ok {
			log.Debugf("negative cache active for %s, serving stale rate", key)
			return stale, nil
		}
		return nil, &ProviderError{StatusCode: neg.statusCode, Message: neg.message}
	}

	// Open circuit: same stale-or-fail policy without touching the
	// provider.
	if now.Before(c.circuitOpenUntil) {
		c.mtx.Unlock()
		if stale, _, ok := c.store.getRate(c.provider.Name(), key); ok {
			log.Debugf("circuit open for %s, serving stale rate", key)
			return stale, nil
		}
		return nil, ErrCircuitOpen
	}

	// Someone is already fetching this pair.
	if cl, ok := c.inflight[key]; ok {
		c.mtx.Unlock()
		select {
		case <-cl.done:
			return cl.rate, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mtx.Unlock()

	cl.rate, cl.err = c.fetch(ctx, base, quote, key)

	c.mtx.Lock()
	delete(c.inflight, key)
	c.mtx.Unlock()
	close(cl.done)

	return cl.rate, cl.err
}

// fetch performs one provider call and applies the success/failure
// bookkeeping.
func (c *Cache) fetch(ctx context.Context, base, quote, key string) (*Rate, error) {
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	rate, err := c.provider.FetchRate(fctx, base, quote)
	now := c.now()

	if err == nil {
		c.mtx.Lock()
		c.consecutiveFailures = 0
		c.circuitOpenUntil = time.Time{}
		c.mem[key] = memEntry{rate: *rate, cachedAt: now}
		delete(c.neg, key)
		c.mtx.Unlock()

		c.store.putRate(c.provider.Name(), key, rate, now)
		log.Debugf("fetched %s=%.2f from %s", key, rate.Rate, rate.Source)
		return rate, nil
	}

	statusCode := 0
	var perr *ProviderError
	if errors.As(err, &perr) {
		statusCode = perr.StatusCode
	}

	c.mtx.Lock()
	c.neg[key] = negEntry{
		message:    err.Error(),
		statusCode: statusCode,
		cachedAt:   now,
		ttl:        c.cfg.NegativeTTL,
	}
	c.consecutiveFailures++
	if c.consecutiveFailures >= c.cfg.CBFailureThreshold {
		c.circuitOpenUntil = now.Add(c.cfg.CBOpenWindow)
		c.consecutiveFailures = 0
		log.Warnf("circuit opened for %s after repeated failures, until %s",
			c.provider.Name(), c.circuitOpenUntil.Format(time.RFC3339))
	}
	c.mtx.Unlock()

	c.store.putNegative(c.provider.Name(), key, persistedNegative{
		ErrorMessage: err.Error(),
		StatusCode:   statusCode,
		CachedAt:     now.UTC().Format(time.RFC3339),
		TTLSeconds:   int(c.cfg.NegativeTTL.Seconds()),
	})

	if stale, cachedAt, ok := c.store.getRate(c.provider.Name(), key); ok {
		log.Warnf("provider failed for %s, serving rate cached at %s: %v",
			key, cachedAt.Format(time.RFC3339), err)
		return stale, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", key, err)
}
