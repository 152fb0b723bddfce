// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/toole-brendan/btcwatch/addresses"
	"github.com/toole-brendan/btcwatch/watch"
)

// LoadWatchedAddresses reads the watch list: the JSON file when it exists,
// otherwise the WATCH_ADDRESSES CSV fallback. Entries that fail address
// validation are logged and skipped; addresses are normalized to their
// canonical form.
func (c *Config) LoadWatchedAddresses() ([]watch.WatchedAddress, error) {
	var raw []watch.WatchedAddress

	data, err := os.ReadFile(c.WatchAddressesFile)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", c.WatchAddressesFile, err)
		}
	case c.WatchAddresses != "":
		raw = parseWatchCSV(c.WatchAddresses)
	default:
		return nil, fmt.Errorf("read %s: %w", c.WatchAddressesFile, err)
	}

	out := make([]watch.WatchedAddress, 0, len(raw))
	for _, wa := range raw {
		normalized, err := addresses.ValidateAndNormalize(wa.Address, nil)
		if err != nil {
			log.Warnf("skipping invalid watch address %q: %v", wa.Address, err)
			continue
		}
		out = append(out, watch.WatchedAddress{
			Address: normalized,
			Label:   wa.Label,
		})
	}
	return out, nil
}

// parseWatchCSV parses the addr[:label],... fallback form.
func parseWatchCSV(csv string) []watch.WatchedAddress {
	var out []watch.WatchedAddress
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		addr, label, _ := strings.Cut(item, ":")
		out = append(out, watch.WatchedAddress{
			Address: strings.TrimSpace(addr),
			Label:   strings.TrimSpace(label),
		})
	}
	return out
}
