// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcclient

import (
	"context"

	"github.com/toole-brendan/btcwatch/btcjson"
)

// GetBlockChainInfo returns chain name and tip height.
func (c *Client) GetBlockChainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error) {
	var result btcjson.GetBlockChainInfoResult
	if err := c.Call(ctx, "getblockchaininfo", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBlockCount returns the tip height.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.Call(ctx, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockHash returns the block hash at the given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	if err := c.Call(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlockVerbose returns a decoded block. Verbosity 2 includes full
// transactions; verbosity 3 additionally inlines prevouts.
func (c *Client) GetBlockVerbose(ctx context.Context, hash string, verbosity int) (*btcjson.GetBlockVerboseResult, error) {
	var result btcjson.GetBlockVerboseResult
	if err := c.Call(ctx, "getblock", []interface{}{hash, verbosity}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBlockRaw returns the hex-serialized block.
func (c *Client) GetBlockRaw(ctx context.Context, hash string) (string, error) {
	var blockHex string
	if err := c.Call(ctx, "getblock", []interface{}{hash, 0}, &blockHex); err != nil {
		return "", err
	}
	return blockHex, nil
}

// GetBlockHeaderVerbose returns the decoded header for the given hash.
func (c *Client) GetBlockHeaderVerbose(ctx context.Context, hash string) (*btcjson.GetBlockHeaderVerboseResult, error) {
	var result btcjson.GetBlockHeaderVerboseResult
	if err := c.Call(ctx, "getblockheader", []interface{}{hash, true}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRawTransactionVerbose returns a decoded transaction, serving repeats
// from a bounded cache so input resolution does not hammer the node.
func (c *Client) GetRawTransactionVerbose(ctx context.Context, txid string) (*btcjson.TxRawResult, error) {
	if tx, ok := c.prevTxCache.Get(txid); ok {
		return tx, nil
	}

	var result btcjson.TxRawResult
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, true}, &result); err != nil {
		return nil, err
	}
	c.prevTxCache.Put(txid, &result)
	return &result, nil
}
