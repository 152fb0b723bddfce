// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

// RedeemClass is the script kind of a redeem script found inside a
// P2SH-wrapped input.
type RedeemClass string

// Redeem script kinds.
const (
	RedeemP2WPKH  RedeemClass = "p2wpkh"
	RedeemP2WSH   RedeemClass = "p2wsh"
	RedeemUnknown RedeemClass = "unknown"
)

// ClassifyRedeemScript recognizes the nested segwit redeem patterns that
// appear inside P2SH-wrapped inputs.
func ClassifyRedeemScript(redeem []byte) RedeemClass {
	if len(redeem) == 22 && redeem[0] == OP_0 && redeem[1] == 0x14 {
		return RedeemP2WPKH
	}
	if len(redeem) == 34 && redeem[0] == OP_0 && redeem[1] == 0x20 {
		return RedeemP2WSH
	}
	return RedeemUnknown
}

// TaprootSpendClass is the spend path of a taproot input witness.
type TaprootSpendClass string

// Taproot spend paths.
const (
	TaprootKeyPath    TaprootSpendClass = "key-path"
	TaprootScriptPath TaprootSpendClass = "script-path"
	TaprootUnknown    TaprootSpendClass = "unknown"
)

// ClassifyTaprootWitness recognizes the spend path of a taproot input from
// its witness stack: a single 64 or 65 byte element is a key-path spend; a
// trailing control block (33 bytes or more with the leaf-version high bit
// set) marks a script-path spend.
func ClassifyTaprootWitness(witness [][]byte) TaprootSpendClass {
	if len(witness) == 1 &&
		(len(witness[0]) == 64 || len(witness[0]) == 65) {
		return TaprootKeyPath
	}
	if len(witness) > 0 {
		last := witness[len(witness)-1]
		if len(last) >= 33 && last[0]&0x80 != 0 {
			return TaprootScriptPath
		}
	}
	return TaprootUnknown
}
