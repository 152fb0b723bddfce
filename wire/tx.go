// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/toole-brendan/btcwatch/chaincfg"
	"github.com/toole-brendan/btcwatch/txscript"
)

// segwit serialization marker and flag bytes (BIP-144).
const (
	segwitMarker = 0x00
	segwitFlag   = 0x01
)

// parseTransaction decodes one transaction at the reader's position. The
// txid is the double SHA-256 of the non-witness serialization: the version,
// the input and output vectors without the segwit marker/flag, and the
// locktime (BIP-141).
func parseTransaction(r *ByteReader, params *chaincfg.Params) (*ParsedTx, error) {
	txStart := r.Position()
	if _, err := r.ReadU32LE(); err != nil {
		return nil, err
	}

	// Peek for the segwit marker and flag.
	marker, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	flag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	segwit := marker == segwitMarker && flag == segwitFlag
	if !segwit {
		if err := r.Rewind(2); err != nil {
			return nil, err
		}
	}
	vinStart := r.Position()

	vinCount, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	tx := &ParsedTx{Inputs: make([]ParsedInput, 0, vinCount)}
	for i := uint64(0); i < vinCount; i++ {
		prevHash, err := r.ReadSlice(32)
		if err != nil {
			return nil, err
		}
		prevVout, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		scriptLen, err := r.ReadVarInt()
		if err != nil {
			return nil, err
		}
		if err := r.Skip(int(scriptLen)); err != nil {
			return nil, err
		}
		if _, err := r.ReadU32LE(); err != nil { // sequence
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, ParsedInput{
			PrevTxid: HexLE(prevHash),
			PrevVout: prevVout,
		})
	}

	voutCount, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]ParsedOutput, 0, voutCount)
	for i := uint64(0); i < voutCount; i++ {
		sats, err := r.ReadU64AsInt()
		if err != nil {
			return nil, err
		}
		scriptLen, err := r.ReadVarInt()
		if err != nil {
			return nil, err
		}
		script, err := r.ReadSlice(int(scriptLen))
		if err != nil {
			return nil, err
		}

		decoded := txscript.ClassifyScript(script, params)
		out := ParsedOutput{
			Address:    decoded.Address,
			ValueSat:   btcutil.Amount(sats),
			ValueBTC:   AmountBTC(btcutil.Amount(sats)),
			ScriptType: decoded.Class,
		}
		if decoded.Class == txscript.NullData {
			out.OpReturnHex = txscript.PayloadHex(decoded.OpReturnPayload)
			if txscript.IsPrintableASCII(decoded.OpReturnPayload) {
				out.OpReturnUTF8 = string(decoded.OpReturnPayload)
			}
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	posBeforeWitness := r.Position()
	if segwit {
		for i := uint64(0); i < vinCount; i++ {
			items, err := r.ReadVarInt()
			if err != nil {
				return nil, err
			}
			for j := uint64(0); j < items; j++ {
				itemLen, err := r.ReadVarInt()
				if err != nil {
					return nil, err
				}
				if err := r.Skip(int(itemLen)); err != nil {
					return nil, err
				}
			}
		}
	}

	locktimeStart := r.Position()
	if _, err := r.ReadU32LE(); err != nil {
		return nil, err
	}

	version, err := r.SliceAbsolute(txStart, txStart+4)
	if err != nil {
		return nil, err
	}
	preWitness, err := r.SliceAbsolute(vinStart, posBeforeWitness)
	if err != nil {
		return nil, err
	}
	locktime, err := r.SliceAbsolute(locktimeStart, locktimeStart+4)
	if err != nil {
		return nil, err
	}
	tx.Txid = HexLE(DoubleHashParts(version, preWitness, locktime))

	return tx, nil
}
