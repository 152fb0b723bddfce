// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package watch

import (
	"sort"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/toole-brendan/btcwatch/wire"
)

func btc(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// tx builds a ParsedTx for match tests.
func tx(txid string, ins []wire.ParsedInput, outs []wire.ParsedOutput) *wire.ParsedTx {
	return &wire.ParsedTx{Txid: txid, Inputs: ins, Outputs: outs}
}

// TestNetActivityDirection covers the netting rules, including the scenario
// where an address both funds and receives within one transaction.
func TestNetActivityDirection(t *testing.T) {
	matcher := NewMatcher([]WatchedAddress{{Address: "addrA", Label: "Wallet A"}})

	t.Run("NetIncoming", func(t *testing.T) {
		// addrA spends 1.0 and receives 1.5: one "in" activity of 0.5.
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t1",
				[]wire.ParsedInput{{PrevTxid: "p", Address: "addrA", ValueBTC: btc("1.0")}},
				[]wire.ParsedOutput{{Address: "addrA", ValueBTC: btc("1.5")}},
			),
		}}

		acts := matcher.CheckBlock(block)
		require.Len(t, acts, 1)
		assert.Equal(t, "addrA", acts[0].Address)
		assert.Equal(t, "Wallet A", acts[0].Label)
		assert.Equal(t, DirectionIn, acts[0].Direction)
		assert.True(t, acts[0].ValueBTC.Equal(btc("0.5")))
		assert.Equal(t, "t1", acts[0].Txid)
	})

	t.Run("NetOutgoing", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t2",
				[]wire.ParsedInput{{PrevTxid: "p", Address: "addrA", ValueBTC: btc("2.0")}},
				[]wire.ParsedOutput{{Address: "addrA", ValueBTC: btc("0.5")}},
			),
		}}

		acts := matcher.CheckBlock(block)
		require.Len(t, acts, 1)
		assert.Equal(t, DirectionOut, acts[0].Direction)
		assert.True(t, acts[0].ValueBTC.Equal(btc("1.5")))
	})

	t.Run("PlainIncoming", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t3", nil,
				[]wire.ParsedOutput{{Address: "addrA", ValueBTC: btc("0.25")}}),
		}}

		acts := matcher.CheckBlock(block)
		require.Len(t, acts, 1)
		assert.Equal(t, DirectionIn, acts[0].Direction)
		assert.True(t, acts[0].ValueBTC.Equal(btc("0.25")))
	})

	t.Run("PlainOutgoing", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t4",
				[]wire.ParsedInput{{PrevTxid: "p", Address: "addrA", ValueBTC: btc("0.75")}},
				nil),
		}}

		acts := matcher.CheckBlock(block)
		require.Len(t, acts, 1)
		assert.Equal(t, DirectionOut, acts[0].Direction)
		assert.True(t, acts[0].ValueBTC.Equal(btc("0.75")))
	})

	t.Run("UnwatchedIgnored", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t5",
				[]wire.ParsedInput{{PrevTxid: "p", Address: "other", ValueBTC: btc("1")}},
				[]wire.ParsedOutput{{Address: "stranger", ValueBTC: btc("2")}}),
		}}
		assert.Empty(t, matcher.CheckBlock(block))
	})
}

// TestOpReturnLabelMatch covers the zero-value label activity and the
// OP_RETURN context attached to matched activities.
func TestOpReturnLabelMatch(t *testing.T) {
	matcher := NewMatcher([]WatchedAddress{{Address: "addrB", Label: "Wallet-A"}})

	block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
		tx("t1", nil, []wire.ParsedOutput{
			{
				ScriptType:   "nulldata",
				OpReturnHex:  "68656c6c6f2077616c6c65742d4120776f726c64",
				OpReturnUTF8: "hello wallet-A world",
			},
		}),
	}}

	acts := matcher.CheckBlock(block)
	require.Len(t, acts, 1)
	assert.Equal(t, "addrB", acts[0].Address)
	assert.Equal(t, "Wallet-A", acts[0].Label)
	assert.Equal(t, DirectionIn, acts[0].Direction)
	assert.True(t, acts[0].ValueBTC.IsZero())
	assert.Equal(t, "hello wallet-A world", acts[0].OpReturnUTF8)

	t.Run("NoDuplicateForBalanceMatchedAddress", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t2", nil, []wire.ParsedOutput{
				{Address: "addrB", ValueBTC: btc("1")},
				{
					ScriptType:   "nulldata",
					OpReturnHex:  "77616c6c65742d41",
					OpReturnUTF8: "wallet-A",
				},
			}),
		}}

		acts := matcher.CheckBlock(block)
		require.Len(t, acts, 1)
		assert.True(t, acts[0].ValueBTC.Equal(btc("1")))
		assert.Equal(t, "wallet-A", acts[0].OpReturnUTF8)
	})

	t.Run("NonPrintablePayloadNoMatch", func(t *testing.T) {
		block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
			tx("t3", nil, []wire.ParsedOutput{
				{ScriptType: "nulldata", OpReturnHex: "00ff"},
			}),
		}}
		assert.Empty(t, matcher.CheckBlock(block))
	})
}

// TestWatchSetPermutationInvariance is the order-independence property: the
// emitted activity set does not depend on watch list order.
func TestWatchSetPermutationInvariance(t *testing.T) {
	block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
		tx("t1",
			[]wire.ParsedInput{
				{PrevTxid: "p", Address: "a1", ValueBTC: btc("1")},
				{PrevTxid: "p", Address: "a2", ValueBTC: btc("2")},
			},
			[]wire.ParsedOutput{
				{Address: "a2", ValueBTC: btc("5")},
				{Address: "a3", ValueBTC: btc("3")},
			}),
		tx("t2", nil, []wire.ParsedOutput{
			{Address: "a1", ValueBTC: btc("0.1")},
		}),
	}}

	list := []WatchedAddress{
		{Address: "a1", Label: "one"},
		{Address: "a2", Label: "two"},
		{Address: "a3", Label: "three"},
	}

	canonical := func(acts []Activity) []Activity {
		out := append([]Activity{}, acts...)
		sort.Slice(out, func(i, j int) bool {
			if out[i].Txid != out[j].Txid {
				return out[i].Txid < out[j].Txid
			}
			return out[i].Address < out[j].Address
		})
		return out
	}

	want := canonical(CheckTransactions(block.Transactions, NewIndex(list)))
	require.Len(t, want, 4)

	rapid.Check(t, func(t *rapid.T) {
		perm := rapid.Permutation(list).Draw(t, "perm")
		got := canonical(CheckTransactions(block.Transactions, NewIndex(perm)))
		if len(got) != len(want) {
			t.Fatalf("activity count changed: %d vs %d", len(got), len(want))
		}
		for i := range want {
			if want[i].Address != got[i].Address ||
				want[i].Direction != got[i].Direction ||
				!want[i].ValueBTC.Equal(got[i].ValueBTC) {
				t.Fatalf("activity %d differs under permutation:\n%s",
					i, spew.Sdump(got))
			}
		}
	})
}

// TestProcessingOrder checks outputs before inputs before label matches and
// block-order preservation.
func TestProcessingOrder(t *testing.T) {
	matcher := NewMatcher([]WatchedAddress{
		{Address: "recv"},
		{Address: "spend"},
		{Address: "tagged", Label: "tag"},
	})

	block := &wire.ParsedBlock{Transactions: []*wire.ParsedTx{
		tx("t1",
			[]wire.ParsedInput{{PrevTxid: "p", Address: "spend", ValueBTC: btc("1")}},
			[]wire.ParsedOutput{
				{Address: "recv", ValueBTC: btc("2")},
				{ScriptType: "nulldata", OpReturnHex: "746167", OpReturnUTF8: "tag"},
			}),
		tx("t2", nil, []wire.ParsedOutput{{Address: "recv", ValueBTC: btc("3")}}),
	}}

	acts := matcher.CheckBlock(block)
	require.Len(t, acts, 4)
	assert.Equal(t, []string{"recv", "spend", "tagged", "recv"}, []string{
		acts[0].Address, acts[1].Address, acts[2].Address, acts[3].Address,
	})
	assert.Equal(t, "t1", acts[0].Txid)
	assert.Equal(t, "t2", acts[3].Txid)
}

// TestSnapshotSwap tests that rebuilding the index is atomic with respect to
// readers holding the old snapshot.
func TestSnapshotSwap(t *testing.T) {
	matcher := NewMatcher([]WatchedAddress{{Address: "old"}})
	before := matcher.Snapshot()

	matcher.SetWatchedAddresses([]WatchedAddress{{Address: "new"}})

	_, ok := before.Contains("old")
	assert.True(t, ok, "old snapshot must keep serving")
	_, ok = matcher.Snapshot().Contains("old")
	assert.False(t, ok)
	_, ok = matcher.Snapshot().Contains("new")
	assert.True(t, ok)
}

// TestIndexLabelKeys tests label normalization and lookup.
func TestIndexLabelKeys(t *testing.T) {
	idx := NewIndex([]WatchedAddress{
		{Address: "x", Label: "  Exchange Hot  "},
		{Address: "y", Label: "exchange hot"},
		{Address: "z"},
	})

	matches := idx.LabelMatches("withdrawal from EXCHANGE HOT wallet")
	require.Len(t, matches, 2)
	assert.Empty(t, idx.LabelMatches("unrelated"))
	assert.Empty(t, idx.LabelMatches(""))
}
