// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addresses

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// ErrInvalidWitnessVersion is returned for witness versions outside
	// the 0..16 range.
	ErrInvalidWitnessVersion = errors.New("witness version must be 0-16")

	// ErrInvalidWitnessProgram is returned for witness programs outside
	// the 2..40 byte range.
	ErrInvalidWitnessProgram = errors.New("witness program must be 2-40 bytes")

	// ErrMixedCase is returned when a bech32 string mixes upper and lower
	// case characters.
	ErrMixedCase = errors.New("bech32 string uses mixed case")
)

// EncodeSegWit encodes a witness version and program as a segwit address.
// Version 0 uses the bech32 checksum; versions 1 through 16 use bech32m, per
// BIP-350.
func EncodeSegWit(hrp string, version byte, program []byte) (string, error) {
	if version > 16 {
		return "", ErrInvalidWitnessVersion
	}
	if len(program) < 2 || len(program) > 40 {
		return "", ErrInvalidWitnessProgram
	}
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := make([]byte, 0, 1+len(converted))
	data = append(data, version)
	data = append(data, converted...)
	if version == 0 {
		return bech32.Encode(hrp, data)
	}
	return bech32.EncodeM(hrp, data)
}

// DecodeSegWit decodes a segwit address and returns its HRP, witness version
// and witness program. The checksum variant must match the witness version:
// bech32 for version 0 and bech32m for versions 1 through 16. Mixed-case
// strings are rejected.
func DecodeSegWit(addr string) (string, byte, []byte, error) {
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return "", 0, nil, ErrMixedCase
	}
	hrp, data, variant, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) < 1 {
		return "", 0, nil, ErrInvalidAddress
	}
	version := data[0]
	if version > 16 {
		return "", 0, nil, ErrInvalidWitnessVersion
	}
	if version == 0 && variant != bech32.Version0 {
		return "", 0, nil, fmt.Errorf("%w: version 0 requires bech32",
			ErrInvalidAddress)
	}
	if version > 0 && variant != bech32.VersionM {
		return "", 0, nil, fmt.Errorf("%w: version %d requires bech32m",
			ErrInvalidAddress, version)
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(program) < 2 || len(program) > 40 {
		return "", 0, nil, ErrInvalidWitnessProgram
	}
	return strings.ToLower(hrp), version, program, nil
}
