// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	"github.com/toole-brendan/btcwatch/chaincfg"
	"github.com/toole-brendan/btcwatch/txscript"
)

// blockHeaderLen is the length of a serialized block header.
const blockHeaderLen = 80

// ParsedInput is a transaction input. Address and value are only populated
// when input resolution is enabled and the previous output is known.
type ParsedInput struct {
	// PrevTxid is the funding transaction id in display order.
	PrevTxid string

	// PrevVout is the funding output index.
	PrevVout uint32

	// Address is the address of the spent output, when resolved.
	Address string

	// ValueBTC is the value of the spent output, when resolved.
	ValueBTC decimal.Decimal
}

// ParsedOutput is a decoded transaction output.
type ParsedOutput struct {
	// Address is the derived destination address, when the script has one.
	Address string

	// ValueSat is the output value in satoshis.
	ValueSat btcutil.Amount

	// ValueBTC is the exact BTC value of the output.
	ValueBTC decimal.Decimal

	// ScriptType is the recognized script kind.
	ScriptType txscript.Class

	// OpReturnHex holds the hex form of a nulldata payload.
	OpReturnHex string

	// OpReturnUTF8 holds the payload as text when it is printable ASCII.
	OpReturnUTF8 string
}

// ParsedTx is a decoded transaction.
type ParsedTx struct {
	// Txid is the double SHA-256 of the non-witness serialization in
	// display order.
	Txid string

	Inputs  []ParsedInput
	Outputs []ParsedOutput
}

// ParsedBlock is a decoded block.
type ParsedBlock struct {
	Hash     string
	PrevHash string
	Height   uint32
	Time     uint32

	Transactions []*ParsedTx
}

// AmountBTC converts a satoshi amount to its exact BTC decimal value.
func AmountBTC(sat btcutil.Amount) decimal.Decimal {
	return decimal.New(int64(sat), -8)
}

// ParseRawBlock decodes a hex-serialized block into a ParsedBlock. The block
// height is not part of the serialization and is taken from the caller.
func ParseRawBlock(blockHex string, height uint32, params *chaincfg.Params) (*ParsedBlock, error) {
	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, decodeError(ErrInvalidHex, fmt.Sprintf(
			"malformed block hex: %v", err))
	}
	if len(raw) < blockHeaderLen {
		return nil, decodeError(ErrTruncatedBlock, fmt.Sprintf(
			"block of %d bytes is shorter than the %d byte header",
			len(raw), blockHeaderLen))
	}

	r := NewByteReader(raw)

	// Header: version, prev block, merkle root, time, bits, nonce.
	if _, err := r.ReadU32LE(); err != nil {
		return nil, err
	}
	prevBlock, err := r.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadSlice(32); err != nil {
		return nil, err
	}
	blockTime, err := r.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32LE(); err != nil {
		return nil, err
	}
	if _, err := r.ReadU32LE(); err != nil {
		return nil, err
	}

	header, err := r.SliceAbsolute(0, blockHeaderLen)
	if err != nil {
		return nil, err
	}

	block := &ParsedBlock{
		Hash:     HexLE(DoubleHash(header)),
		PrevHash: HexLE(prevBlock),
		Height:   height,
		Time:     blockTime,
	}

	txCount, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("block %s: tx count: %w", block.Hash, err)
	}

	block.Transactions = make([]*ParsedTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := parseTransaction(r, params)
		if err != nil {
			return nil, fmt.Errorf("block %s: tx %d: %w", block.Hash, i, err)
		}
		block.Transactions = append(block.Transactions, tx)
	}

	return block, nil
}
