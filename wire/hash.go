// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DoubleHash returns sha256(sha256(buf)).
func DoubleHash(buf []byte) []byte {
	return chainhash.DoubleHashB(buf)
}

// DoubleHashParts returns the double SHA-256 of the concatenation of parts
// without materializing the concatenated buffer.
func DoubleHashParts(parts ...[]byte) []byte {
	h := chainhash.DoubleHashRaw(func(w io.Writer) error {
		for _, p := range parts {
			if _, err := w.Write(p); err != nil {
				return err
			}
		}
		return nil
	})
	return h[:]
}

// HexLE returns the lowercase hex encoding of buf with its byte order
// reversed, which is the display order Bitcoin uses for block hashes and
// txids.
func HexLE(buf []byte) string {
	rev := make([]byte, len(buf))
	for i, b := range buf {
		rev[len(buf)-1-i] = b
	}
	return hex.EncodeToString(rev)
}
