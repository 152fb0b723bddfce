// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hrw

import "github.com/toole-brendan/btcwatch/watch"

// FilterWatched returns the watch entries this instance is responsible for.
// Across the fleet the per-instance results are disjoint and their union is
// the full list.
func (s *Sharder) FilterWatched(list []watch.WatchedAddress) []watch.WatchedAddress {
	out := make([]watch.WatchedAddress, 0, len(list))
	for _, wa := range list {
		if s.IsResponsible(wa.Address) {
			out = append(out, wa)
		}
	}
	return out
}
