// Copyright (c) 2014-2017 The btcsuite developers
// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpcclient implements the Bitcoin JSON-RPC client the monitor uses
// to follow the chain: HTTP POST transport with a shared keep-alive pool,
// single and batch request forms, and typed verbose results.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	btcdjson "github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/go-socks/socks"
	"github.com/decred/dcrd/container/lru"

	"github.com/toole-brendan/btcwatch/btcjson"
)

const (
	// DefaultRequestTimeout bounds a single RPC round trip.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultPrevTxCacheSize bounds the previous-transaction cache used
	// for input resolution.
	DefaultPrevTxCacheSize = 1000

	// maxIdleConnsPerHost sizes the keep-alive pool towards the node.
	maxIdleConnsPerHost = 8
)

// Config describes the connection to the node.
type Config struct {
	// URL is the http or https endpoint, optionally carrying basic-auth
	// userinfo.
	URL string

	// Timeout overrides DefaultRequestTimeout when positive.
	Timeout time.Duration

	// Proxy optionally routes the connection through a SOCKS5 proxy.
	Proxy     string
	ProxyUser string
	ProxyPass string

	// PrevTxCacheSize overrides DefaultPrevTxCacheSize when positive.
	PrevTxCacheSize uint32
}

// RPCError is an error payload returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error satisfies the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a Bitcoin JSON-RPC client over HTTP POST.
type Client struct {
	endpoint   string
	user       string
	pass       string
	httpClient *http.Client
	nextID     atomic.Uint64

	prevTxCache *lru.Map[string, *btcjson.TxRawResult]
}

// New creates a client for the given endpoint.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rpc url must be http or https, got %q", u.Scheme)
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
		u.User = nil
	}

	dialer := (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	if cfg.Proxy != "" {
		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		dialer = func(_ context.Context, network, addr string) (net.Conn, error) {
			return proxy.Dial(network, addr)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	cacheSize := cfg.PrevTxCacheSize
	if cacheSize == 0 {
		cacheSize = DefaultPrevTxCacheSize
	}

	return &Client{
		endpoint: u.String(),
		user:     user,
		pass:     pass,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         dialer,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		prevTxCache: lru.NewMap[string, *btcjson.TxRawResult](cacheSize),
	}, nil
}

// Call performs a single JSON-RPC request and unmarshals the result into
// result when it is non-nil.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	id := c.nextID.Add(1)
	log.Tracef("rpc call %s (id %d)", method, id)
	req, err := btcdjson.NewRequest(btcdjson.RpcVersion2, id, method, params)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var resp rawResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	return resp.extract(result)
}

// BatchRequest is one element of a batched call. Result, when non-nil,
// receives the matched response payload.
type BatchRequest struct {
	Method string
	Params []interface{}
	Result interface{}

	// Err carries the per-request outcome after CallBatch returns.
	Err error

	id uint64
}

// rawResponse is the wire response envelope.
type rawResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     uint64          `json:"id"`
}

// extract maps the envelope onto a per-request error or result value.
func (r *rawResponse) extract(result interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// CallBatch performs the requests as one JSON-RPC batch. The node may
// reorder replies; they are matched back by id. Transport failures are
// returned directly, per-request failures land in each request's Err.
func (c *Client) CallBatch(ctx context.Context, reqs []*BatchRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	wire := make([]*btcdjson.Request, 0, len(reqs))
	for _, br := range reqs {
		br.id = c.nextID.Add(1)
		req, err := btcdjson.NewRequest(btcdjson.RpcVersion2, br.id, br.Method, br.Params)
		if err != nil {
			return fmt.Errorf("build %s request: %w", br.Method, err)
		}
		wire = append(wire, req)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var resps []rawResponse
	if err := json.Unmarshal(respBody, &resps); err != nil {
		return fmt.Errorf("unmarshal batch response: %w", err)
	}

	byID := make(map[uint64]*rawResponse, len(resps))
	for i := range resps {
		byID[resps[i].ID] = &resps[i]
	}
	for _, br := range reqs {
		resp, ok := byID[br.id]
		if !ok {
			br.Err = fmt.Errorf("no response for %s (id %d)", br.Method, br.id)
			continue
		}
		br.Err = resp.extract(br.Result)
	}
	return nil
}

// post sends one HTTP POST and returns the raw body.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rpc read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// JSON-RPC errors ride on non-2xx statuses for some nodes;
		// surface the payload when it parses as an envelope.
		var envelope rawResponse
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			return respBody, nil
		}
		return nil, fmt.Errorf("rpc status %d: %s", resp.StatusCode,
			bytes.TrimSpace(respBody))
	}
	return respBody, nil
}

// Shutdown releases the keep-alive pool.
func (c *Client) Shutdown() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
