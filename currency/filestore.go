// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// persistedRate is the on-disk form of a cached rate.
type persistedRate struct {
	Base     string  `json:"base"`
	Quote    string  `json:"quote"`
	Rate     float64 `json:"rate"`
	Time     string  `json:"time"`
	Source   string  `json:"source"`
	CachedAt string  `json:"cachedAt"`
}

// persistedNegative is the on-disk form of a cached failure.
type persistedNegative struct {
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode,omitempty"`
	CachedAt     string `json:"cachedAt"`
	TTLSeconds   int    `json:"ttlSeconds"`
}

// negativesKey is the reserved pair key holding cached failures.
const negativesKey = "_negatives"

// providerEntry is one provider's section of the cache file. Pairs are
// dynamic keys next to the reserved _negatives key, so marshaling is custom.
type providerEntry struct {
	Rates     map[string]persistedRate
	Negatives map[string]persistedNegative
}

// MarshalJSON implements json.Marshaler.
func (p providerEntry) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(p.Rates)+1)
	for pair, rate := range p.Rates {
		doc[pair] = rate
	}
	if len(p.Negatives) > 0 {
		doc[negativesKey] = p.Negatives
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *providerEntry) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	p.Rates = make(map[string]persistedRate)
	p.Negatives = make(map[string]persistedNegative)
	for key, raw := range doc {
		if key == negativesKey {
			if err := json.Unmarshal(raw, &p.Negatives); err != nil {
				return err
			}
			continue
		}
		var rate persistedRate
		if err := json.Unmarshal(raw, &rate); err != nil {
			continue // tolerate unknown shapes
		}
		p.Rates[key] = rate
	}
	return nil
}

// fileStore persists rates as a single JSON document. Writes are serialized
// through one writer; readers treat a missing or invalid file as empty.
type fileStore struct {
	path string
	mtx  sync.Mutex
}

func newFileStore(path string) *fileStore {
	return &fileStore{path: path}
}

// load reads the whole document, returning an empty document when the file
// is missing or unreadable.
func (fs *fileStore) load() map[string]providerEntry {
	doc := make(map[string]providerEntry)
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warnf("rate cache file %s is invalid, treating as empty: %v",
			fs.path, err)
		return make(map[string]providerEntry)
	}
	return doc
}

// getRate returns the persisted rate for provider/pair and its cache time.
func (fs *fileStore) getRate(provider, pair string) (*Rate, time.Time, bool) {
	entry, ok := fs.load()[provider]
	if !ok {
		return nil, time.Time{}, false
	}
	pr, ok := entry.Rates[pair]
	if !ok {
		return nil, time.Time{}, false
	}
	cachedAt, err := time.Parse(time.RFC3339, pr.CachedAt)
	if err != nil {
		return nil, time.Time{}, false
	}
	rateTime, err := time.Parse(time.RFC3339, pr.Time)
	if err != nil {
		rateTime = cachedAt
	}
	return &Rate{
		Base:   pr.Base,
		Quote:  pr.Quote,
		Rate:   pr.Rate,
		Time:   rateTime,
		Source: pr.Source,
	}, cachedAt, true
}

// putRate persists a rate under provider/pair and clears any negative entry
// for the pair.
func (fs *fileStore) putRate(provider, pair string, rate *Rate, cachedAt time.Time) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	doc := fs.load()
	entry := doc[provider]
	if entry.Rates == nil {
		entry.Rates = make(map[string]persistedRate)
	}
	if entry.Negatives == nil {
		entry.Negatives = make(map[string]persistedNegative)
	}
	entry.Rates[pair] = persistedRate{
		Base:     rate.Base,
		Quote:    rate.Quote,
		Rate:     rate.Rate,
		Time:     rate.Time.UTC().Format(time.RFC3339),
		Source:   rate.Source,
		CachedAt: cachedAt.UTC().Format(time.RFC3339),
	}
	delete(entry.Negatives, pair)
	doc[provider] = entry
	fs.write(doc)
}

// putNegative persists a failed lookup under provider/_negatives/pair.
func (fs *fileStore) putNegative(provider, pair string, neg persistedNegative) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()

	doc := fs.load()
	entry := doc[provider]
	if entry.Rates == nil {
		entry.Rates = make(map[string]persistedRate)
	}
	if entry.Negatives == nil {
		entry.Negatives = make(map[string]persistedNegative)
	}
	entry.Negatives[pair] = neg
	doc[provider] = entry
	fs.write(doc)
}

// write atomically replaces the cache file.
func (fs *fileStore) write(doc map[string]providerEntry) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Errorf("marshal rate cache: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		log.Errorf("create rate cache dir: %v", err)
		return
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Errorf("write rate cache: %v", err)
		return
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		log.Errorf("replace rate cache: %v", err)
	}
}
