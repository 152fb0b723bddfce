// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestNoFalseNegatives is the load-bearing property: every added item tests
// positive, regardless of filter sizing.
func TestNoFalseNegatives(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.String(), 1, 200).Draw(t, "items")
		p := rapid.Float64Range(1e-6, 0.5).Draw(t, "p")

		f := New(len(items), p)
		for _, item := range items {
			f.Add(item)
		}
		for _, item := range items {
			if !f.MightContain(item) {
				t.Fatalf("false negative for %q", item)
			}
		}
	})
}

// TestSizing tests the m/k formulas and their clamps.
func TestSizing(t *testing.T) {
	t.Run("MinimumBits", func(t *testing.T) {
		f := New(1, 0.5)
		m, k := f.Params()
		assert.Equal(t, uint32(64), m)
		assert.GreaterOrEqual(t, k, uint32(1))
	})

	t.Run("GrowsWithItems", func(t *testing.T) {
		small, _ := New(100, 0.01).Params()
		large, _ := New(10000, 0.01).Params()
		assert.Greater(t, large, small)
	})

	t.Run("RateClamped", func(t *testing.T) {
		// Out-of-range rates clamp instead of producing degenerate
		// filters.
		lo, _ := New(100, 1e-12).Params()
		hi, _ := New(100, 0.99).Params()
		assert.Greater(t, lo, hi)
	})
}

// TestFalsePositiveRate checks the observed rate stays in the same order of
// magnitude as the target.
func TestFalsePositiveRate(t *testing.T) {
	const n = 1000
	f := New(n, 0.01)
	for i := 0; i < n; i++ {
		f.Add(fmt.Sprintf("member-%d", i))
	}

	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if f.MightContain(fmt.Sprintf("outsider-%d", i)) {
			falsePositives++
		}
	}
	// 1% target; allow generous slack to keep the test deterministic.
	assert.Less(t, falsePositives, probes/20)
}
