// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/toole-brendan/btcwatch/btcjson"
	"github.com/toole-brendan/btcwatch/txscript"
)

// verboseScriptClasses maps the script type strings reported by bitcoind to
// the classifier's classes. Anything unlisted is nonstandard.
var verboseScriptClasses = map[string]txscript.Class{
	"pubkeyhash":            txscript.PubKeyHash,
	"scripthash":            txscript.ScriptHash,
	"witness_v0_keyhash":    txscript.WitnessV0KeyHash,
	"witness_v0_scripthash": txscript.WitnessV0ScriptHash,
	"witness_v1_taproot":    txscript.WitnessV1Taproot,
	"nulldata":              txscript.NullData,
}

// BlockFromVerbose synthesizes a ParsedBlock from a getblock reply at
// verbosity 2 or 3. Input addresses are only populated when resolveInputs is
// set and the reply carries inline prevouts (verbosity 3); there is no
// fallback fetch here.
func BlockFromVerbose(vb *btcjson.GetBlockVerboseResult, resolveInputs bool) *ParsedBlock {
	block := &ParsedBlock{
		Hash:         vb.Hash,
		PrevHash:     vb.PreviousBlockHash,
		Height:       vb.Height,
		Time:         uint32(vb.Time),
		Transactions: make([]*ParsedTx, 0, len(vb.Tx)),
	}

	for i := range vb.Tx {
		block.Transactions = append(block.Transactions, TxFromVerbose(&vb.Tx[i], resolveInputs))
	}
	return block
}

// TxFromVerbose synthesizes a ParsedTx from a verbose transaction.
func TxFromVerbose(vt *btcjson.TxRawResult, resolveInputs bool) *ParsedTx {
	tx := &ParsedTx{
		Txid:    vt.Txid,
		Inputs:  make([]ParsedInput, 0, len(vt.Vin)),
		Outputs: make([]ParsedOutput, 0, len(vt.Vout)),
	}

	for i := range vt.Vin {
		vin := &vt.Vin[i]
		if vin.IsCoinBase() {
			tx.Inputs = append(tx.Inputs, ParsedInput{})
			continue
		}
		in := ParsedInput{
			PrevTxid: vin.Txid,
			PrevVout: vin.Vout,
		}
		if resolveInputs && vin.PrevOut != nil {
			in.Address = vin.PrevOut.ScriptPubKey.FirstAddress()
			in.ValueBTC = vin.PrevOut.Value
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	for i := range vt.Vout {
		vout := &vt.Vout[i]
		class, ok := verboseScriptClasses[vout.ScriptPubKey.Type]
		if !ok {
			class = txscript.NonStandard
		}
		out := ParsedOutput{
			Address:    vout.ScriptPubKey.FirstAddress(),
			ValueBTC:   vout.Value,
			ScriptType: class,
		}
		if sats := vout.Value.Shift(8); sats.IsInteger() {
			out.ValueSat = btcutil.Amount(sats.IntPart())
		}
		if class == txscript.NullData {
			if payload := opReturnFromAsm(vout.ScriptPubKey.Asm); len(payload) > 0 {
				out.OpReturnHex = txscript.PayloadHex(payload)
				if txscript.IsPrintableASCII(payload) {
					out.OpReturnUTF8 = string(payload)
				}
			}
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	return tx
}

// opReturnFromAsm extracts the payload of an "OP_RETURN <hex>" asm string,
// skipping any non-hex tokens between the opcode and the payload.
func opReturnFromAsm(asm string) []byte {
	fields := strings.Fields(asm)
	if len(fields) < 2 || fields[0] != "OP_RETURN" {
		return nil
	}
	for _, field := range fields[1:] {
		if payload, err := hex.DecodeString(field); err == nil && len(payload) > 0 {
			return payload
		}
	}
	return nil
}
