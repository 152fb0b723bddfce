// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toole-brendan/btcwatch/addresses"
	"github.com/toole-brendan/btcwatch/chaincfg"
	"github.com/toole-brendan/btcwatch/txscript"
)

// blockBuilder assembles raw block bytes for tests.
type blockBuilder struct {
	buf bytes.Buffer
}

func (b *blockBuilder) u8(v byte)    { b.buf.WriteByte(v) }
func (b *blockBuilder) u32(v uint32) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *blockBuilder) u64(v uint64) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *blockBuilder) raw(p []byte) { b.buf.Write(p) }

func (b *blockBuilder) varint(v uint64) {
	switch {
	case v < 0xfd:
		b.u8(byte(v))
	case v <= 0xffff:
		b.u8(0xfd)
		binary.Write(&b.buf, binary.LittleEndian, uint16(v))
	default:
		b.u8(0xfe)
		b.u32(uint32(v))
	}
}

func (b *blockBuilder) bytesWithLen(p []byte) {
	b.varint(uint64(len(p)))
	b.raw(p)
}

func repeat(v byte, n int) []byte {
	return bytes.Repeat([]byte{v}, n)
}

// p2pkhScript builds DUP HASH160 PUSH20 <hash> EQUALVERIFY CHECKSIG.
func p2pkhScript(hash []byte) []byte {
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, hash...)
	return append(script, 0x88, 0xac)
}

// opReturnScript builds OP_RETURN PUSH <payload>.
func opReturnScript(payload []byte) []byte {
	script := []byte{0x6a, byte(len(payload))}
	return append(script, payload...)
}

// legacyTx serializes a one-input transaction paying the given outputs.
func legacyTx(outputs []struct {
	sats   uint64
	script []byte
}) []byte {
	var b blockBuilder
	b.u32(1) // version
	b.varint(1)
	b.raw(repeat(0xaa, 32)) // prev hash
	b.u32(0)                // prev vout
	b.varint(0)             // empty scriptSig
	b.u32(0xffffffff)       // sequence
	b.varint(uint64(len(outputs)))
	for _, out := range outputs {
		b.u64(out.sats)
		b.bytesWithLen(out.script)
	}
	b.u32(0) // locktime
	return b.buf.Bytes()
}

// segwitTx serializes a one-input segwit transaction and also returns its
// non-witness form for txid comparison.
func segwitTx(sats uint64, script []byte) (full, stripped []byte) {
	var b blockBuilder
	b.u32(2) // version
	b.u8(0x00)
	b.u8(0x01) // marker + flag
	b.varint(1)
	b.raw(repeat(0xbb, 32))
	b.u32(1)
	b.varint(0)
	b.u32(0xfffffffe)
	b.varint(1)
	b.u64(sats)
	b.bytesWithLen(script)
	// Witness: two items.
	b.varint(2)
	b.bytesWithLen(repeat(0x01, 71))
	b.bytesWithLen(repeat(0x02, 33))
	b.u32(0) // locktime
	full = b.buf.Bytes()

	var s blockBuilder
	s.u32(2)
	s.varint(1)
	s.raw(repeat(0xbb, 32))
	s.u32(1)
	s.varint(0)
	s.u32(0xfffffffe)
	s.varint(1)
	s.u64(sats)
	s.bytesWithLen(script)
	s.u32(0)
	stripped = s.buf.Bytes()
	return full, stripped
}

// buildBlock wraps the given serialized transactions with an 80-byte header.
func buildBlock(txs ...[]byte) ([]byte, []byte) {
	var b blockBuilder
	b.u32(1)                // version
	b.raw(repeat(0xdd, 32)) // prev block
	b.raw(repeat(0xee, 32)) // merkle root
	b.u32(1700000000)       // time
	b.u32(0x1d00ffff)       // bits
	b.u32(42)               // nonce
	header := append([]byte{}, b.buf.Bytes()...)
	b.varint(uint64(len(txs)))
	for _, tx := range txs {
		b.raw(tx)
	}
	return b.buf.Bytes(), header
}

func txidOf(nonWitness []byte) string {
	return HexLE(chainhash.DoubleHashB(nonWitness))
}

// TestParseRawBlock decodes a hand-built two-transaction block and verifies
// hashes, txids, values, addresses and OP_RETURN extraction.
func TestParseRawBlock(t *testing.T) {
	params := &chaincfg.MainNetParams

	pubKeyHash := repeat(0x11, 20)
	wantAddr, err := addresses.EncodeBase58Check(params.PubKeyHashAddrID, pubKeyHash)
	require.NoError(t, err)

	payload := []byte("hello wallet-A world")
	tx1 := legacyTx([]struct {
		sats   uint64
		script []byte
	}{
		{sats: 150_000_000, script: p2pkhScript(pubKeyHash)},
		{sats: 0, script: opReturnScript(payload)},
	})

	witnessScript := append([]byte{0x00, 0x14}, repeat(0x22, 20)...)
	tx2, tx2Stripped := segwitTx(30_000, witnessScript)

	raw, header := buildBlock(tx1, tx2)

	block, err := ParseRawBlock(hex.EncodeToString(raw), 840000, params)
	require.NoError(t, err)

	assert.Equal(t, HexLE(chainhash.DoubleHashB(header)), block.Hash)
	assert.Equal(t, HexLE(repeat(0xdd, 32)), block.PrevHash)
	assert.Equal(t, uint32(840000), block.Height)
	assert.Equal(t, uint32(1700000000), block.Time)
	require.Len(t, block.Transactions, 2)

	t.Run("LegacyTx", func(t *testing.T) {
		tx := block.Transactions[0]
		assert.Equal(t, txidOf(tx1), tx.Txid)
		require.Len(t, tx.Inputs, 1)
		assert.Equal(t, HexLE(repeat(0xaa, 32)), tx.Inputs[0].PrevTxid)
		require.Len(t, tx.Outputs, 2)

		out := tx.Outputs[0]
		assert.Equal(t, txscript.PubKeyHash, out.ScriptType)
		assert.Equal(t, wantAddr, out.Address)
		assert.True(t, out.ValueBTC.Equal(decimal.RequireFromString("1.5")))
		assert.Equal(t, btcutil.Amount(150_000_000), out.ValueSat)

		ret := tx.Outputs[1]
		assert.Equal(t, txscript.NullData, ret.ScriptType)
		assert.Equal(t, hex.EncodeToString(payload), ret.OpReturnHex)
		assert.Equal(t, "hello wallet-A world", ret.OpReturnUTF8)
	})

	t.Run("SegwitTxidExcludesWitness", func(t *testing.T) {
		tx := block.Transactions[1]
		assert.Equal(t, txidOf(tx2Stripped), tx.Txid)
		require.Len(t, tx.Outputs, 1)
		assert.Equal(t, txscript.WitnessV0KeyHash, tx.Outputs[0].ScriptType)
		assert.True(t, tx.Outputs[0].ValueBTC.Equal(decimal.RequireFromString("0.0003")))
	})
}

// TestParseRawBlockErrors exercises the decode failure modes.
func TestParseRawBlockErrors(t *testing.T) {
	params := &chaincfg.MainNetParams

	t.Run("BadHex", func(t *testing.T) {
		_, err := ParseRawBlock("zz", 1, params)
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrInvalidHex))
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := ParseRawBlock(hex.EncodeToString(repeat(0x00, 40)), 1, params)
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrTruncatedBlock))
	})

	t.Run("TruncatedTx", func(t *testing.T) {
		tx := legacyTx([]struct {
			sats   uint64
			script []byte
		}{{sats: 1000, script: p2pkhScript(repeat(0x11, 20))}})
		raw, _ := buildBlock(tx)
		_, err := ParseRawBlock(hex.EncodeToString(raw[:len(raw)-3]), 1, params)
		require.Error(t, err)
	})
}
