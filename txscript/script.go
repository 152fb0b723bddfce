// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txscript classifies transaction output scripts into the standard
// script kinds the watch monitor understands and derives the address a script
// pays to.
package txscript

import (
	"encoding/hex"

	"github.com/toole-brendan/btcwatch/addresses"
	"github.com/toole-brendan/btcwatch/chaincfg"
)

// Script opcodes the classifier cares about.
const (
	OP_0           = 0x00
	OP_PUSHDATA1   = 0x4c
	OP_PUSHDATA2   = 0x4d
	OP_PUSHDATA4   = 0x4e
	OP_1           = 0x51
	OP_RETURN      = 0x6a
	OP_DUP         = 0x76
	OP_EQUAL       = 0x87
	OP_EQUALVERIFY = 0x88
	OP_HASH160     = 0xa9
	OP_CHECKSIG    = 0xac
)

// Class is the standard script kind of an output script.
type Class string

// Standard classes of scripts. The string values are stable and appear in
// emitted notifications.
const (
	PubKeyHash          Class = "pubkeyhash"
	ScriptHash          Class = "scripthash"
	WitnessV0KeyHash    Class = "witness_v0_keyhash"
	WitnessV0ScriptHash Class = "witness_v0_scripthash"
	WitnessV1Taproot    Class = "witness_v1_taproot"
	NullData            Class = "nulldata"
	NonStandard         Class = "nonstandard"
)

// Decoded is the result of classifying an output script.
type Decoded struct {
	// Class is the recognized script kind.
	Class Class

	// Address is the derived address, when the class has one.
	Address string

	// OpReturnPayload holds the first pushdata of a nulldata script.
	OpReturnPayload []byte
}

// ClassifyScript classifies a raw scriptPubKey and derives its address for
// the given network. Recognition order follows the standard templates;
// anything unrecognized is nonstandard.
func ClassifyScript(script []byte, params *chaincfg.Params) Decoded {
	if len(script) == 0 {
		return Decoded{Class: NonStandard}
	}

	// OP_RETURN data carrier.
	if script[0] == OP_RETURN {
		if payload := opReturnPayload(script[1:]); len(payload) > 0 {
			return Decoded{Class: NullData, OpReturnPayload: payload}
		}
		return Decoded{Class: NonStandard}
	}

	// P2PKH: DUP HASH160 PUSH20 <20> EQUALVERIFY CHECKSIG.
	if len(script) == 25 &&
		script[0] == OP_DUP && script[1] == OP_HASH160 && script[2] == 0x14 &&
		script[23] == OP_EQUALVERIFY && script[24] == OP_CHECKSIG {

		addr, err := addresses.EncodeBase58Check(params.PubKeyHashAddrID, script[3:23])
		if err != nil {
			return Decoded{Class: NonStandard}
		}
		return Decoded{Class: PubKeyHash, Address: addr}
	}

	// P2SH: HASH160 PUSH20 <20> EQUAL.
	if len(script) == 23 &&
		script[0] == OP_HASH160 && script[1] == 0x14 && script[22] == OP_EQUAL {

		addr, err := addresses.EncodeBase58Check(params.ScriptHashAddrID, script[2:22])
		if err != nil {
			return Decoded{Class: NonStandard}
		}
		return Decoded{Class: ScriptHash, Address: addr}
	}

	// P2WPKH / P2WSH: version 0 witness programs.
	if len(script) == 22 && script[0] == OP_0 && script[1] == 0x14 {
		addr, err := addresses.EncodeSegWit(params.Bech32HRPSegwit, 0, script[2:])
		if err != nil {
			return Decoded{Class: NonStandard}
		}
		return Decoded{Class: WitnessV0KeyHash, Address: addr}
	}
	if len(script) == 34 && script[0] == OP_0 && script[1] == 0x20 {
		addr, err := addresses.EncodeSegWit(params.Bech32HRPSegwit, 0, script[2:])
		if err != nil {
			return Decoded{Class: NonStandard}
		}
		return Decoded{Class: WitnessV0ScriptHash, Address: addr}
	}

	// P2TR: version 1 witness program, 32 bytes.
	if len(script) == 34 && script[0] == OP_1 && script[1] == 0x20 {
		addr, err := addresses.EncodeSegWit(params.Bech32HRPSegwit, 1, script[2:])
		if err != nil {
			return Decoded{Class: NonStandard}
		}
		return Decoded{Class: WitnessV1Taproot, Address: addr}
	}

	return Decoded{Class: NonStandard}
}

// opReturnPayload scans the bytes after an OP_RETURN, skipping non-push
// opcodes, and returns the first pushdata payload it finds. A nil return
// means the script carries no payload.
func opReturnPayload(script []byte) []byte {
	for i := 0; i < len(script); {
		op := script[i]
		switch {
		case op >= 0x01 && op <= 0x4b:
			start := i + 1
			end := start + int(op)
			if end > len(script) {
				return nil
			}
			return script[start:end]

		case op == OP_PUSHDATA1:
			if i+2 > len(script) {
				return nil
			}
			n := int(script[i+1])
			start := i + 2
			if start+n > len(script) {
				return nil
			}
			return script[start : start+n]

		case op == OP_PUSHDATA2:
			if i+3 > len(script) {
				return nil
			}
			n := int(script[i+1]) | int(script[i+2])<<8
			start := i + 3
			if start+n > len(script) {
				return nil
			}
			return script[start : start+n]

		case op == OP_PUSHDATA4:
			if i+5 > len(script) {
				return nil
			}
			n := int(script[i+1]) | int(script[i+2])<<8 |
				int(script[i+3])<<16 | int(script[i+4])<<24
			if n < 0 {
				return nil
			}
			start := i + 5
			if start+n > len(script) {
				return nil
			}
			return script[start : start+n]

		default:
			// Non-push opcode; keep scanning.
			i++
		}
	}
	return nil
}

// PayloadHex returns the lowercase hex form of an OP_RETURN payload.
func PayloadHex(payload []byte) string {
	return hex.EncodeToString(payload)
}

// IsPrintableASCII reports whether every byte of payload is tab, LF, CR or a
// printable ASCII character, which is the gate for exposing an OP_RETURN
// payload as UTF-8 text.
func IsPrintableASCII(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	for _, b := range payload {
		if b == 0x09 || b == 0x0a || b == 0x0d {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
