// Copyright (c) 2014-2017 The btcsuite developers
// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcjson models the verbose JSON results returned by the Bitcoin
// JSON-RPC methods the watch monitor consumes. Amounts are decoded as exact
// decimals rather than floats, and fields whose shape varies across node
// versions carry tolerant unmarshalers.
package btcjson

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// GetBlockChainInfoResult models the subset of the getblockchaininfo reply
// the monitor uses.
type GetBlockChainInfoResult struct {
	Chain  string `json:"chain"`
	Blocks int64  `json:"blocks"`
}

// GetBlockHeaderVerboseResult models the verbose getblockheader reply.
type GetBlockHeaderVerboseResult struct {
	Hash              string `json:"hash"`
	Height            uint32 `json:"height"`
	Time              int64  `json:"time"`
	PreviousBlockHash string `json:"previousblockhash"`
	NextBlockHash     string `json:"nextblockhash"`
}

// AddressField decodes the scriptPubKey "address" field, which some node
// versions emit as a plain string and others as a one-element array.
type AddressField string

// UnmarshalJSON implements json.Unmarshaler.
func (a *AddressField) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AddressField(s)
		return nil
	}
	if data[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			*a = AddressField(arr[0])
		} else {
			*a = ""
		}
		return nil
	}
	return fmt.Errorf("unexpected address field: %s", data)
}

// ScriptPubKeyResult models the scriptPubKey object of a verbose output.
type ScriptPubKeyResult struct {
	Asm       string       `json:"asm"`
	Hex       string       `json:"hex"`
	Type      string       `json:"type"`
	Address   AddressField `json:"address"`
	Addresses []string     `json:"addresses"`
}

// FirstAddress returns the output address, preferring the modern singular
// field over the legacy addresses array.
func (s *ScriptPubKeyResult) FirstAddress() string {
	if s.Address != "" {
		return string(s.Address)
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return ""
}

// PrevOut models the inline prevout object attached to verbose inputs at
// getblock verbosity 3.
type PrevOut struct {
	Value        decimal.Decimal    `json:"value"`
	ScriptPubKey ScriptPubKeyResult `json:"scriptPubKey"`
}

// Vin models a verbose transaction input.
type Vin struct {
	Coinbase string   `json:"coinbase"`
	Txid     string   `json:"txid"`
	Vout     uint32   `json:"vout"`
	Sequence uint32   `json:"sequence"`
	PrevOut  *PrevOut `json:"prevout"`
}

// IsCoinBase returns whether the input is the coinbase input.
func (v *Vin) IsCoinBase() bool {
	return v.Coinbase != ""
}

// Vout models a verbose transaction output.
type Vout struct {
	Value        decimal.Decimal    `json:"value"`
	N            uint32             `json:"n"`
	ScriptPubKey ScriptPubKeyResult `json:"scriptPubKey"`
}

// TxRawResult models a verbose transaction.
type TxRawResult struct {
	Txid string `json:"txid"`
	Hash string `json:"hash"`
	Hex  string `json:"hex"`
	Vin  []Vin  `json:"vin"`
	Vout []Vout `json:"vout"`
}

// GetBlockVerboseResult models a getblock reply at verbosity 2 or 3.
type GetBlockVerboseResult struct {
	Hash              string        `json:"hash"`
	Height            uint32        `json:"height"`
	Time              int64         `json:"time"`
	PreviousBlockHash string        `json:"previousblockhash"`
	Tx                []TxRawResult `json:"tx"`
}
