// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultCMCBaseURL is the production CoinMarketCap API origin.
const DefaultCMCBaseURL = "https://pro-api.coinmarketcap.com"

// cmcKeyHeader carries the API key.
const cmcKeyHeader = "X-CMC_PRO_API_KEY"

// fiat symbols the provider cannot use as a conversion source; lookups from
// one of these invert the opposite direction instead.
var fiatSymbols = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CHF": {}, "AUD": {}, "CAD": {},
}

// CoinMarketCap resolves rates from the CoinMarketCap price-conversion API,
// falling back to the latest-quotes endpoint when conversion fails.
type CoinMarketCap struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewCoinMarketCap creates a provider. An empty baseURL selects the
// production API; client may be nil.
func NewCoinMarketCap(apiKey, baseURL string, client *http.Client) *CoinMarketCap {
	if baseURL == "" {
		baseURL = DefaultCMCBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &CoinMarketCap{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name implements Provider.
func (c *CoinMarketCap) Name() string {
	return "coinmarketcap"
}

// isFiat reports whether symbol is a fiat currency the API cannot convert
// from directly.
func isFiat(symbol string) bool {
	_, ok := fiatSymbols[strings.ToUpper(symbol)]
	return ok
}

// FetchRate implements Provider. Crypto-to-anything uses the provider
// directly; fiat-to-crypto fetches the opposite direction and inverts.
func (c *CoinMarketCap) FetchRate(ctx context.Context, base, quote string) (*Rate, error) {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)

	if isFiat(base) && !isFiat(quote) {
		inverse, err := c.FetchRate(ctx, quote, base)
		if err != nil {
			return nil, err
		}
		if inverse.Rate == 0 {
			return nil, &ProviderError{Message: fmt.Sprintf(
				"cannot invert zero rate for %s/%s", quote, base)}
		}
		return &Rate{
			Base:   base,
			Quote:  quote,
			Rate:   1 / inverse.Rate,
			Time:   inverse.Time,
			Source: c.Name(),
		}, nil
	}

	price, updated, err := c.priceConversion(ctx, base, quote)
	if err != nil {
		log.Debugf("price-conversion failed for %s/%s, trying quotes/latest: %v",
			base, quote, err)
		price, updated, err = c.quotesLatest(ctx, base, quote)
		if err != nil {
			return nil, err
		}
	}

	return &Rate{
		Base:   base,
		Quote:  quote,
		Rate:   price,
		Time:   updated,
		Source: c.Name(),
	}, nil
}

// cmcQuote is the per-currency quote object shared by both endpoints.
type cmcQuote struct {
	Price       float64 `json:"price"`
	LastUpdated string  `json:"last_updated"`
}

// priceConversion calls /v2/tools/price-conversion.
func (c *CoinMarketCap) priceConversion(ctx context.Context, base, quote string) (float64, time.Time, error) {
	query := url.Values{
		"amount":  {"1"},
		"symbol":  {base},
		"convert": {quote},
	}
	body, err := c.get(ctx, "/v2/tools/price-conversion", query)
	if err != nil {
		return 0, time.Time{}, err
	}

	var reply struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return 0, time.Time{}, &ProviderError{Message: fmt.Sprintf(
			"malformed price-conversion reply: %v", err)}
	}

	type conversion struct {
		Quote map[string]cmcQuote `json:"quote"`
	}

	// The v2 endpoint returns a single object, but id-based requests can
	// produce a one-element array. Accept both.
	var conv conversion
	if err := json.Unmarshal(reply.Data, &conv); err != nil {
		var arr []conversion
		if err := json.Unmarshal(reply.Data, &arr); err != nil || len(arr) == 0 {
			return 0, time.Time{}, &ProviderError{Message: "unexpected price-conversion shape"}
		}
		conv = arr[0]
	}

	return quoteValue(conv.Quote, quote)
}

// quotesLatest calls /v2/cryptocurrency/quotes/latest as a fallback.
func (c *CoinMarketCap) quotesLatest(ctx context.Context, base, quote string) (float64, time.Time, error) {
	query := url.Values{
		"symbol":  {base},
		"convert": {quote},
	}
	body, err := c.get(ctx, "/v2/cryptocurrency/quotes/latest", query)
	if err != nil {
		return 0, time.Time{}, err
	}

	var reply struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return 0, time.Time{}, &ProviderError{Message: fmt.Sprintf(
			"malformed quotes reply: %v", err)}
	}
	raw, ok := reply.Data[base]
	if !ok {
		return 0, time.Time{}, &ProviderError{Message: fmt.Sprintf(
			"no quote data for %s", base)}
	}

	type quoted struct {
		Quote map[string]cmcQuote `json:"quote"`
	}
	var entry quoted
	if err := json.Unmarshal(raw, &entry); err != nil {
		var arr []quoted
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
			return 0, time.Time{}, &ProviderError{Message: "unexpected quotes shape"}
		}
		entry = arr[0]
	}

	return quoteValue(entry.Quote, quote)
}

// quoteValue extracts the price and timestamp for quote from a quote map.
func quoteValue(quotes map[string]cmcQuote, quote string) (float64, time.Time, error) {
	q, ok := quotes[quote]
	if !ok || q.Price == 0 {
		return 0, time.Time{}, &ProviderError{Message: fmt.Sprintf(
			"no %s price in reply", quote)}
	}
	updated, err := time.Parse(time.RFC3339, q.LastUpdated)
	if err != nil {
		updated = time.Now().UTC()
	}
	return q.Price, updated, nil
}

// Ping implements Provider: key info first, then the cheapest map query.
func (c *CoinMarketCap) Ping(ctx context.Context) error {
	if _, err := c.get(ctx, "/v1/key/info", nil); err == nil {
		return nil
	}
	_, err := c.get(ctx, "/v1/cryptocurrency/map", url.Values{"limit": {"1"}})
	return err
}

// get performs one authenticated GET and returns the body for 2xx replies.
func (c *CoinMarketCap) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(cmcKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
