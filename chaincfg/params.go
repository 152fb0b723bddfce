// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the network parameters the watch monitor needs to
// derive and validate addresses for the Bitcoin networks it can observe.
package chaincfg

import (
	"errors"
	"strings"
)

// ErrUnknownNetwork is returned when a network name does not match any of the
// supported parameter sets.
var ErrUnknownNetwork = errors.New("unknown network")

// Params defines the address-encoding parameters for a Bitcoin network.
type Params struct {
	// Name identifies the network. It matches the "chain" field reported
	// by getblockchaininfo for the network.
	Name string

	// Bech32HRPSegwit is the human-readable part for Bech32 encoded
	// segwit addresses, as defined in BIP 173.
	Bech32HRPSegwit string

	// Address encoding magics.
	PubKeyHashAddrID byte // First byte of a P2PKH address
	ScriptHashAddrID byte // First byte of a P2SH address
}

// MainNetParams defines the network parameters for the main Bitcoin network.
var MainNetParams = Params{
	Name:            "main",
	Bech32HRPSegwit: "bc",

	PubKeyHashAddrID: 0x00, // starts with 1
	ScriptHashAddrID: 0x05, // starts with 3
}

// TestNet3Params defines the network parameters for the test Bitcoin network
// (version 3).
var TestNet3Params = Params{
	Name:            "test",
	Bech32HRPSegwit: "tb",

	PubKeyHashAddrID: 0x6f, // starts with m or n
	ScriptHashAddrID: 0xc4, // starts with 2
}

// SigNetParams defines the network parameters for the signet test network.
// Signet shares the testnet address space but uses its own chain.
var SigNetParams = Params{
	Name:            "signet",
	Bech32HRPSegwit: "tb",

	PubKeyHashAddrID: 0x6f, // starts with m or n
	ScriptHashAddrID: 0xc4, // starts with 2
}

// RegressionNetParams defines the network parameters for the regression test
// network.
var RegressionNetParams = Params{
	Name:            "regtest",
	Bech32HRPSegwit: "bcrt",

	PubKeyHashAddrID: 0x6f, // starts with m or n
	ScriptHashAddrID: 0xc4, // starts with 2
}

// allParams lists every supported parameter set in lookup order. TestNet3
// precedes SigNet, so the HRP and version bytes the two share resolve to
// TestNet3.
var allParams = []*Params{
	&MainNetParams,
	&TestNet3Params,
	&SigNetParams,
	&RegressionNetParams,
}

// ParamsForName returns the network parameters matching the given name.
// Common aliases (mainnet, testnet, testnet3) are accepted.
func ParamsForName(name string) (*Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "main", "mainnet":
		return &MainNetParams, nil
	case "test", "testnet", "testnet3":
		return &TestNet3Params, nil
	case "signet":
		return &SigNetParams, nil
	case "regtest", "regression":
		return &RegressionNetParams, nil
	}
	return nil, ErrUnknownNetwork
}

// IsBech32SegwitPrefix returns whether the given HRP belongs to any supported
// network and the matching parameters when it does.
func IsBech32SegwitPrefix(hrp string) (*Params, bool) {
	hrp = strings.ToLower(hrp)
	for _, params := range allParams {
		if params.Bech32HRPSegwit == hrp {
			return params, true
		}
	}
	return nil, false
}

// ParamsForAddrID returns the parameter sets whose P2PKH or P2SH version byte
// equals id, along with whether the version byte selects a script hash. The
// testnet family shares version bytes, so the first match in lookup order is
// returned.
func ParamsForAddrID(id byte) (*Params, bool, bool) {
	for _, params := range allParams {
		if params.PubKeyHashAddrID == id {
			return params, false, true
		}
		if params.ScriptHashAddrID == id {
			return params, true, true
		}
	}
	return nil, false, false
}
