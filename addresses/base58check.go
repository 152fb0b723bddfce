// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addresses implements the address encodings the watch monitor
// derives from scripts and accepts in its watch list: Base58Check for legacy
// P2PKH/P2SH addresses and bech32/bech32m for segwit addresses.
package addresses

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/toole-brendan/btcwatch/chaincfg"
)

const (
	// base58ChecksumLen is the number of trailing checksum bytes in a
	// Base58Check encoded address.
	base58ChecksumLen = 4

	// hash160Len is the only payload length accepted for P2PKH and P2SH
	// addresses.
	hash160Len = 20
)

var (
	// ErrInvalidAddress is returned when an address cannot be decoded.
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrChecksumMismatch is returned when a Base58Check checksum does
	// not validate.
	ErrChecksumMismatch = errors.New("address checksum mismatch")

	// ErrUnknownAddressVersion is returned when a Base58Check version
	// byte does not belong to any supported network.
	ErrUnknownAddressVersion = errors.New("unknown address version byte")

	// ErrWrongNetwork is returned when an address decodes but does not
	// belong to the requested network.
	ErrWrongNetwork = errors.New("address is not for the requested network")
)

// EncodeBase58Check encodes a 20-byte hash payload with the given version
// byte and a 4-byte double SHA-256 checksum.
func EncodeBase58Check(version byte, payload []byte) (string, error) {
	if len(payload) != hash160Len {
		return "", fmt.Errorf("payload must be %d bytes, got %d",
			hash160Len, len(payload))
	}
	body := make([]byte, 0, 1+hash160Len+base58ChecksumLen)
	body = append(body, version)
	body = append(body, payload...)
	checksum := chainhash.DoubleHashB(body)[:base58ChecksumLen]
	body = append(body, checksum...)
	return base58.Encode(body), nil
}

// DecodeBase58Check decodes a Base58Check address, validates its checksum
// and returns the version byte and 20-byte payload. Only version bytes that
// belong to a supported network are accepted.
func DecodeBase58Check(addr string) (byte, []byte, error) {
	decoded := base58.Decode(addr)
	if len(decoded) != 1+hash160Len+base58ChecksumLen {
		return 0, nil, ErrInvalidAddress
	}
	body := decoded[:1+hash160Len]
	checksum := decoded[1+hash160Len:]
	expected := chainhash.DoubleHashB(body)[:base58ChecksumLen]
	for i := range checksum {
		if checksum[i] != expected[i] {
			return 0, nil, ErrChecksumMismatch
		}
	}
	version := body[0]
	if _, _, ok := chaincfg.ParamsForAddrID(version); !ok {
		return 0, nil, ErrUnknownAddressVersion
	}
	payload := make([]byte, hash160Len)
	copy(payload, body[1:])
	return version, payload, nil
}
