// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bloom implements the probabilistic membership pre-filter that
// gates watch-set lookups. Positives are only hints and must be confirmed
// against the exact set; negatives are definitive.
package bloom

import (
	"math"
)

const (
	// minBits is the smallest bit-array size ever allocated.
	minBits = 64

	// h2Substitute replaces a zero second hash so the double-hashing
	// probe sequence never degenerates to a single bit.
	h2Substitute = 0x27d4eb2d
)

// Filter is a fixed-size Bloom filter keyed by strings, using double hashing
// over FNV-1a and DJB2.
type Filter struct {
	bits []uint32
	m    uint32
	k    uint32
}

// New creates a filter sized for n items at false-positive rate p. The rate
// is clamped to [1e-6, 0.5].
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	if p < 1e-6 {
		p = 1e-6
	}
	if p > 0.5 {
		p = 0.5
	}

	ln2 := math.Ln2
	m := uint32(math.Max(minBits,
		math.Ceil(-float64(n)*math.Log(p)/(ln2*ln2))))
	k := uint32(math.Max(1, math.Round(float64(m)/float64(n)*ln2)))

	return &Filter{
		bits: make([]uint32, (m+31)/32),
		m:    m,
		k:    k,
	}
}

// fnv1a32 is the 32-bit FNV-1a hash.
func fnv1a32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// djb2 is the classic DJB2 string hash.
func djb2(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// indexes returns the two base hashes for s (FNV-1a and DJB2, with a zero
// DJB2 value substituted) from which the k probe positions are derived.
func (f *Filter) indexes(s string) (uint32, uint32) {
	h1 := fnv1a32(s)
	h2 := djb2(s)
	if h2 == 0 {
		h2 = h2Substitute
	}
	return h1, h2
}

// Add inserts s into the filter.
func (f *Filter) Add(s string) {
	h1, h2 := f.indexes(s)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		f.bits[bit/32] |= 1 << (bit % 32)
	}
}

// MightContain reports whether s may have been added. False positives are
// possible; false negatives are not.
func (f *Filter) MightContain(s string) bool {
	h1, h2 := f.indexes(s)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		if f.bits[bit/32]&(1<<(bit%32)) == 0 {
			return false
		}
	}
	return true
}

// Params returns the filter's bit count and hash count.
func (f *Filter) Params() (m, k uint32) {
	return f.m, f.k
}
