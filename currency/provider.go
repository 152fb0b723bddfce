// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package currency implements the fiat rate lookup used to enrich address
// activity: a layered memory/file cache with TTL jitter, negative caching,
// a failure circuit breaker and in-flight de-duplication in front of a
// pluggable provider.
package currency

import (
	"context"
	"fmt"
	"time"
)

// Rate is one exchange rate observation.
type Rate struct {
	Base   string    `json:"base"`
	Quote  string    `json:"quote"`
	Rate   float64   `json:"rate"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
}

// Provider fetches exchange rates from an external service.
type Provider interface {
	// Name identifies the provider; it keys the persisted cache.
	Name() string

	// FetchRate fetches the base/quote rate.
	FetchRate(ctx context.Context, base, quote string) (*Rate, error)

	// Ping checks that the provider is reachable and the credentials
	// are valid.
	Ping(ctx context.Context) error
}

// ProviderError is a failed provider call. StatusCode is zero for transport
// errors.
type ProviderError struct {
	StatusCode int
	Message    string
}

// Error satisfies the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}
