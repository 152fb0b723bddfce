// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package watch

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/toole-brendan/btcwatch/wire"
)

// Direction tells whether an activity moved funds into or out of a watched
// address.
type Direction string

// Activity directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Activity is a single directional balance change for a watched address
// within one transaction, optionally enriched with fiat value and OP_RETURN
// context.
type Activity struct {
	Address      string
	Label        string
	Txid         string
	Direction    Direction
	ValueBTC     decimal.Decimal
	ValueUSD     decimal.Decimal
	HasUSD       bool
	OpReturnHex  string
	OpReturnUTF8 string
}

// Matcher runs blocks against the current watch index snapshot. The snapshot
// is swapped atomically on reload; a block in flight keeps the snapshot it
// started with.
type Matcher struct {
	index atomic.Pointer[Index]
}

// NewMatcher creates a matcher over the given watch list.
func NewMatcher(list []WatchedAddress) *Matcher {
	m := &Matcher{}
	m.SetWatchedAddresses(list)
	return m
}

// SetWatchedAddresses rebuilds the index from list and publishes it
// atomically.
func (m *Matcher) SetWatchedAddresses(list []WatchedAddress) {
	m.index.Store(NewIndex(list))
}

// Snapshot returns the current index snapshot.
func (m *Matcher) Snapshot() *Index {
	return m.index.Load()
}

// amounts aggregates per-address values while preserving first-insertion
// order. It is reused across the transactions of a block.
type amounts struct {
	keys   []string
	values map[string]decimal.Decimal
}

func newAmounts() *amounts {
	return &amounts{values: make(map[string]decimal.Decimal)}
}

func (a *amounts) add(addr string, v decimal.Decimal) {
	if prev, ok := a.values[addr]; ok {
		a.values[addr] = prev.Add(v)
		return
	}
	a.keys = append(a.keys, addr)
	a.values[addr] = v
}

func (a *amounts) reset() {
	a.keys = a.keys[:0]
	for k := range a.values {
		delete(a.values, k)
	}
}

// CheckBlock extracts the watched-address activity of every transaction in
// the block against the current index snapshot, in block order.
func (m *Matcher) CheckBlock(block *wire.ParsedBlock) []Activity {
	return CheckTransactions(block.Transactions, m.Snapshot())
}

// CheckTransactions extracts watched-address activity from transactions
// using the given index snapshot. Within a transaction outputs are processed
// before inputs before label matches; per-address aggregation preserves
// first-seen order.
func CheckTransactions(txs []*wire.ParsedTx, idx *Index) []Activity {
	var activities []Activity
	incoming := newAmounts()
	outgoing := newAmounts()
	matched := make(map[string]struct{})

	for _, tx := range txs {
		incoming.reset()
		outgoing.reset()
		clear(matched)

		// First non-empty OP_RETURN payload in the transaction provides
		// the context attached to every activity it produces.
		var opReturnHex, opReturnUTF8 string
		for i := range tx.Outputs {
			if tx.Outputs[i].OpReturnHex != "" {
				opReturnHex = tx.Outputs[i].OpReturnHex
				opReturnUTF8 = tx.Outputs[i].OpReturnUTF8
				break
			}
		}

		for i := range tx.Outputs {
			out := &tx.Outputs[i]
			if out.Address == "" {
				continue
			}
			if _, ok := idx.Contains(out.Address); ok {
				incoming.add(out.Address, out.ValueBTC)
			}
		}

		for i := range tx.Inputs {
			in := &tx.Inputs[i]
			if in.Address == "" {
				continue
			}
			if _, ok := idx.Contains(in.Address); ok {
				outgoing.add(in.Address, in.ValueBTC)
			}
		}

		emit := func(addr string, dir Direction, value decimal.Decimal) {
			label, _ := idx.Contains(addr)
			activities = append(activities, Activity{
				Address:      addr,
				Label:        label,
				Txid:         tx.Txid,
				Direction:    dir,
				ValueBTC:     value,
				OpReturnHex:  opReturnHex,
				OpReturnUTF8: opReturnUTF8,
			})
		}

		for _, addr := range incoming.keys {
			in := incoming.values[addr]
			out, hasOut := outgoing.values[addr]
			net := in.Sub(out)
			switch {
			case in.Sign() > 0 && hasOut && out.Sign() > 0 && net.Sign() != 0:
				dir := DirectionIn
				if net.Sign() < 0 {
					dir = DirectionOut
				}
				emit(addr, dir, net.Abs())
			case in.Sign() > 0:
				emit(addr, DirectionIn, in)
			}
			matched[addr] = struct{}{}
		}

		for _, addr := range outgoing.keys {
			if _, done := matched[addr]; done {
				continue
			}
			if out := outgoing.values[addr]; out.Sign() > 0 {
				emit(addr, DirectionOut, out)
				matched[addr] = struct{}{}
			}
		}

		if opReturnUTF8 != "" {
			for _, wa := range idx.LabelMatches(opReturnUTF8) {
				if _, done := matched[wa.Address]; done {
					continue
				}
				emit(wa.Address, DirectionIn, decimal.Zero)
				matched[wa.Address] = struct{}{}
			}
		}
	}

	return activities
}
