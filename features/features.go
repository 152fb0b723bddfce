// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package features holds the typed feature flags that steer block decoding,
// with optional hot reload from a JSON file.
package features

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReloadInterval is how often the flags file is polled when no
// interval is configured.
const DefaultReloadInterval = 2 * time.Second

// Flags is the feature flag record. A record is immutable once published;
// updates swap the whole record.
type Flags struct {
	// ParseRawBlocks selects the raw hex decoder over the verbose RPC
	// path.
	ParseRawBlocks bool `json:"parseRawBlocks"`

	// ResolveInputAddresses enables input address resolution.
	ResolveInputAddresses bool `json:"resolveInputAddresses"`
}

// Manager publishes the current flag record and notifies subscribers on
// change.
type Manager struct {
	current atomic.Pointer[Flags]

	mtx         sync.Mutex
	subscribers []func(Flags)
	lastContent []byte
}

// NewManager creates a manager with the given initial flags.
func NewManager(initial Flags) *Manager {
	m := &Manager{}
	m.current.Store(&initial)
	return m
}

// Current returns the active flag record.
func (m *Manager) Current() Flags {
	return *m.current.Load()
}

// Subscribe registers a callback invoked after every flag change.
func (m *Manager) Subscribe(fn func(Flags)) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// set swaps the record and notifies subscribers.
func (m *Manager) set(flags Flags) {
	m.current.Store(&flags)

	m.mtx.Lock()
	subs := make([]func(Flags), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mtx.Unlock()

	for _, fn := range subs {
		fn(flags)
	}
}

// WatchFile polls path every interval and swaps the record when the file
// content changes. It blocks until the context is canceled and is meant to
// run in its own goroutine. Unreadable or invalid files leave the current
// record in place.
func (m *Manager) WatchFile(ctx context.Context, path string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	log.Infof("watching feature flags file %s every %s", path, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reload(path)
		}
	}
}

// reload applies one poll cycle.
func (m *Manager) reload(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("feature flags file unreadable: %v", err)
		return
	}

	m.mtx.Lock()
	changed := !bytes.Equal(content, m.lastContent)
	if changed {
		m.lastContent = content
	}
	m.mtx.Unlock()
	if !changed {
		return
	}

	var flags Flags
	if err := json.Unmarshal(content, &flags); err != nil {
		log.Warnf("feature flags file %s is invalid, keeping current flags: %v",
			path, err)
		return
	}

	log.Infof("feature flags reloaded: parseRawBlocks=%v resolveInputAddresses=%v",
		flags.ParseRawBlocks, flags.ResolveInputAddresses)
	m.set(flags)
}
