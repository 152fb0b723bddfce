// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addresses

import (
	"fmt"
	"strings"

	"github.com/toole-brendan/btcwatch/chaincfg"
)

// ValidateAndNormalize checks that addr is a well-formed Bitcoin address and
// returns its canonical form: lowercase for bech32/bech32m addresses, the
// original string for Base58Check addresses. When params is non-nil the
// address must belong to that network.
func ValidateAndNormalize(addr string, params *chaincfg.Params) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", ErrInvalidAddress
	}

	// Segwit first: an HRP separator with a known prefix marks a bech32
	// candidate. Decoding enforces checksum, case and version rules.
	if sep := strings.LastIndexByte(trimmed, '1'); sep > 0 {
		if _, ok := chaincfg.IsBech32SegwitPrefix(strings.ToLower(trimmed[:sep])); ok {
			hrp, _, _, err := DecodeSegWit(trimmed)
			if err != nil {
				return "", err
			}
			if params != nil && hrp != params.Bech32HRPSegwit {
				return "", fmt.Errorf("%w: hrp %q does not match %q",
					ErrWrongNetwork, hrp, params.Bech32HRPSegwit)
			}
			return strings.ToLower(trimmed), nil
		}
	}

	version, _, err := DecodeBase58Check(trimmed)
	if err != nil {
		return "", err
	}
	if params != nil &&
		version != params.PubKeyHashAddrID &&
		version != params.ScriptHashAddrID {
		return "", fmt.Errorf("%w: version byte 0x%02x", ErrWrongNetwork, version)
	}
	return trimmed, nil
}
