// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package watch holds the watched-address index and the match engine that
// extracts per-transaction activity for watched addresses from parsed
// blocks.
package watch

import (
	"strings"

	"github.com/toole-brendan/btcwatch/bloom"
)

// bloomRate is the false-positive rate the index pre-filter is sized for.
const bloomRate = 0.01

// WatchedAddress is one entry of the watch list. Entries are immutable for
// the lifetime of an index snapshot.
type WatchedAddress struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

// Index is an immutable snapshot of the watch list: the exact address set,
// a label index for OP_RETURN matching and a Bloom pre-filter. A new
// snapshot is built on every reload; readers keep using the snapshot they
// observed until their frame completes.
type Index struct {
	watchSet   map[string]string
	labelIndex map[string][]WatchedAddress
	labelKeys  []string
	filter     *bloom.Filter
	addresses  []WatchedAddress
}

// NewIndex builds an index snapshot from the given watch list.
func NewIndex(list []WatchedAddress) *Index {
	idx := &Index{
		watchSet:   make(map[string]string, len(list)),
		labelIndex: make(map[string][]WatchedAddress),
		filter:     bloom.New(len(list), bloomRate),
		addresses:  make([]WatchedAddress, 0, len(list)),
	}
	for _, wa := range list {
		if wa.Address == "" {
			continue
		}
		if _, dup := idx.watchSet[wa.Address]; dup {
			continue
		}
		idx.watchSet[wa.Address] = wa.Label
		idx.filter.Add(wa.Address)
		idx.addresses = append(idx.addresses, wa)

		if key := strings.ToLower(strings.TrimSpace(wa.Label)); key != "" {
			if _, seen := idx.labelIndex[key]; !seen {
				idx.labelKeys = append(idx.labelKeys, key)
			}
			idx.labelIndex[key] = append(idx.labelIndex[key], wa)
		}
	}
	return idx
}

// Len returns the number of watched addresses.
func (idx *Index) Len() int {
	return len(idx.addresses)
}

// Addresses returns the indexed watch list.
func (idx *Index) Addresses() []WatchedAddress {
	return idx.addresses
}

// Contains reports whether address is watched and returns its label. The
// Bloom filter runs first so the common non-watched case never touches the
// exact set; a filter positive is always confirmed.
func (idx *Index) Contains(address string) (string, bool) {
	if address == "" || !idx.filter.MightContain(address) {
		return "", false
	}
	label, ok := idx.watchSet[address]
	return label, ok
}

// LabelMatches returns the watch entries whose label key appears as a
// case-insensitive substring of text.
func (idx *Index) LabelMatches(text string) []WatchedAddress {
	if text == "" || len(idx.labelIndex) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var out []WatchedAddress
	for _, key := range idx.labelKeys {
		if !strings.Contains(lower, key) {
			continue
		}
		for _, wa := range idx.labelIndex[key] {
			if _, ok := idx.Contains(wa.Address); ok {
				out = append(out, wa)
			}
		}
	}
	return out
}
