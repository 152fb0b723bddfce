// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable provider double.
type fakeProvider struct {
	mtx     sync.Mutex
	calls   int
	fail    bool
	rate    float64
	delay   time.Duration
	pingErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchRate(ctx context.Context, base, quote string) (*Rate, error) {
	p.mtx.Lock()
	p.calls++
	fail, rate, delay := p.fail, p.rate, p.delay
	p.mtx.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, &ProviderError{StatusCode: 503, Message: "unavailable"}
	}
	return &Rate{
		Base: base, Quote: quote, Rate: rate,
		Time: time.Now().UTC(), Source: p.Name(),
	}, nil
}

func (p *fakeProvider) Ping(context.Context) error { return p.pingErr }

func (p *fakeProvider) callCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.calls
}

func (p *fakeProvider) setFail(fail bool) {
	p.mtx.Lock()
	p.fail = fail
	p.mtx.Unlock()
}

func newTestCache(t *testing.T, provider Provider, cfg Config) *Cache {
	t.Helper()
	if cfg.FilePath == "" {
		cfg.FilePath = filepath.Join(t.TempDir(), "cache", "currency_rates.json")
	}
	return NewCache(provider, cfg)
}

// TestMemoryCacheHit tests that a fresh memory entry suppresses fetches.
func TestMemoryCacheHit(t *testing.T) {
	provider := &fakeProvider{rate: 20000}
	cache := newTestCache(t, provider, Config{})
	ctx := context.Background()

	first, err := cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, first.Rate)

	second, err := cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, first.Rate, second.Rate)
	assert.Equal(t, 1, provider.callCount())
}

// TestFileCacheSurvivesProcessRestart tests the file layer: a new cache over
// the same file serves without fetching.
func TestFileCacheSurvivesProcessRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "currency_rates.json")
	provider := &fakeProvider{rate: 21000}
	ctx := context.Background()

	cache := newTestCache(t, provider, Config{FilePath: path})
	_, err := cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)

	reborn := newTestCache(t, &fakeProvider{rate: 99999}, Config{FilePath: path})
	rate, err := reborn.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 21000.0, rate.Rate, "must come from the file, not the provider")
}

// TestCircuitBreakerRecovery is the outage scenario: three consecutive
// failures open the circuit; the next call serves the stale file rate
// without touching the provider; after the open window one fetch happens.
func TestCircuitBreakerRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "currency_rates.json")
	provider := &fakeProvider{rate: 20000}
	ctx := context.Background()

	cache := newTestCache(t, provider, Config{
		FilePath:           path,
		CBFailureThreshold: 3,
		CBOpenWindow:       50 * time.Millisecond,
		NegativeTTL:        time.Millisecond,
	})

	// Seed the file cache with a good rate, then expire it.
	_, err := cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount())

	// Freeze and steer the clock so TTLs expire deterministically.
	base := time.Now()
	var offset time.Duration
	var clockMtx sync.Mutex
	advance := func(d time.Duration) {
		clockMtx.Lock()
		offset += d
		clockMtx.Unlock()
	}
	cache.now = func() time.Time {
		clockMtx.Lock()
		defer clockMtx.Unlock()
		return base.Add(offset)
	}
	advance(2 * time.Hour) // expire the seeded entry
	provider.setFail(true)

	// Three failing fetches. Each returns the stale file entry; the
	// clock steps past the negative TTL between calls so each reaches
	// the provider again.
	for i := 0; i < 3; i++ {
		rate, err := cache.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.Equal(t, 20000.0, rate.Rate, "stale rate expected")
		advance(2 * time.Millisecond)
	}
	require.Equal(t, 4, provider.callCount())

	// Circuit is open now: no provider contact, stale rate served.
	rate, err := cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rate.Rate)
	assert.Equal(t, 4, provider.callCount(), "circuit must block the provider")

	// After the window closes a single fetch goes out again.
	advance(time.Minute)
	provider.setFail(false)
	rate, err = cache.GetRate(ctx, "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rate.Rate)
	assert.Equal(t, 5, provider.callCount())
}

// TestNegativeCacheWithoutStale tests that a cached failure replays without
// contacting the provider when there is no stale entry to fall back to.
func TestNegativeCacheWithoutStale(t *testing.T) {
	provider := &fakeProvider{fail: true}
	cache := newTestCache(t, provider, Config{NegativeTTL: time.Hour})
	ctx := context.Background()

	_, err := cache.GetRate(ctx, "BTC", "USD")
	require.Error(t, err)
	require.Equal(t, 1, provider.callCount())

	_, err = cache.GetRate(ctx, "BTC", "USD")
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount(), "negative cache must absorb the retry")
}

// TestSingleFlight tests in-flight de-duplication: concurrent callers for
// the same pair share one fetch.
func TestSingleFlight(t *testing.T) {
	provider := &fakeProvider{rate: 20000, delay: 20 * time.Millisecond}
	cache := newTestCache(t, provider, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, err := cache.GetRate(ctx, "BTC", "USD")
			if err != nil || rate.Rate != 20000 {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, provider.callCount())
}

// TestGetUSDRateDowngradesToZero tests the enrichment helper.
func TestGetUSDRateDowngradesToZero(t *testing.T) {
	cache := newTestCache(t, &fakeProvider{fail: true}, Config{})
	assert.Zero(t, cache.GetUSDRate(context.Background()))

	ok := newTestCache(t, &fakeProvider{rate: 12345}, Config{})
	assert.Equal(t, 12345.0, ok.GetUSDRate(context.Background()))
}

// TestEffectiveTTLJitter tests the jitter bounds and the one-second floor.
func TestEffectiveTTLJitter(t *testing.T) {
	cache := newTestCache(t, &fakeProvider{}, Config{
		BaseTTL:   100 * time.Second,
		TTLJitter: 0.1,
	})
	for i := 0; i < 100; i++ {
		ttl := cache.effectiveTTL()
		assert.GreaterOrEqual(t, ttl, 90*time.Second)
		assert.LessOrEqual(t, ttl, 110*time.Second)
	}

	tiny := newTestCache(t, &fakeProvider{}, Config{
		BaseTTL:   time.Second,
		TTLJitter: 0.5,
	})
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, tiny.effectiveTTL(), time.Second)
	}
}

// TestConfigNormalize tests defaulting and clamping.
func TestConfigNormalize(t *testing.T) {
	cfg := Config{TTLJitter: 0.9}
	cfg.normalize()
	assert.Equal(t, DefaultBaseTTL, cfg.BaseTTL)
	assert.Equal(t, MaxTTLJitter, cfg.TTLJitter)
	assert.Equal(t, DefaultNegativeTTL, cfg.NegativeTTL)
	assert.Equal(t, DefaultCBFailureThreshold, cfg.CBFailureThreshold)
	assert.Equal(t, DefaultCBOpenWindow, cfg.CBOpenWindow)
	assert.Equal(t, "BTC", cfg.DefaultBase)
	assert.Equal(t, "USD", cfg.DefaultQuote)
}
