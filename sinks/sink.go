// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sinks implements the notification outputs address activity is
// delivered to.
package sinks

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/toole-brendan/btcwatch/events"
)

// Sink delivers one activity notification. Implementations must tolerate
// out-of-order activities; the delivery stage runs concurrently.
type Sink interface {
	// Kind names the sink, e.g. "stdout" or "webhook".
	Kind() string

	// Send delivers one activity. A nil return acknowledges delivery.
	Send(ctx context.Context, ev *events.AddressActivityFound) error
}

// payload is the JSON document written by the stdout, file and webhook
// sinks. BTC and USD diffs are signed by direction; the USD diff is written
// with exactly two decimal places.
type payload struct {
	Timestamp string `json:"timestamp"`
	DedupeKey string `json:"dedupeKey"`
	Height    uint32 `json:"height"`
	BlockHash string `json:"blockHash"`
	Txid      string `json:"txid"`
	Address   string `json:"address"`
	Label     string `json:"label,omitempty"`
	Direction string `json:"direction"`

	DiffBTC decimal.Decimal `json:"diffBtc"`
	DiffUSD string          `json:"diffUsd,omitempty"`

	OpReturnHex  string `json:"opReturnHex,omitempty"`
	OpReturnUTF8 string `json:"opReturnUtf8,omitempty"`
}

// newPayload maps an activity event onto the wire document.
func newPayload(ev *events.AddressActivityFound) payload {
	act := &ev.Activity

	diffBTC := act.ValueBTC
	if act.Direction == "out" {
		diffBTC = diffBTC.Neg()
	}

	p := payload{
		Timestamp: ev.Timestamp().Format("2006-01-02T15:04:05.000Z07:00"),
		DedupeKey: ev.DedupeKey(),
		Height:    ev.Height,
		BlockHash: ev.BlockHash,
		Txid:      act.Txid,
		Address:   act.Address,
		Label:     act.Label,
		Direction: string(act.Direction),

		DiffBTC: diffBTC,

		OpReturnHex:  act.OpReturnHex,
		OpReturnUTF8: act.OpReturnUTF8,
	}
	if act.HasUSD {
		diffUSD := act.ValueUSD
		if act.Direction == "out" {
			diffUSD = diffUSD.Neg()
		}
		p.DiffUSD = diffUSD.StringFixed(2)
	}
	return p
}
