// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hrw implements rendezvous (highest-random-weight) hashing for
// partitioning the watch list across a fleet of worker instances. For a
// fixed member set the assignment is deterministic and stable across
// restarts; changing the member set only moves the keys whose top-ranked
// member changed.
package hrw

import "sort"

// Sharder assigns keys to members of a fixed fleet.
type Sharder struct {
	selfID  string
	members []string
}

// New creates a sharder for selfID within members. Members are deduplicated
// and selfID is inserted when absent; an empty member list collapses to the
// single-member fleet {selfID}.
func New(selfID string, members []string) *Sharder {
	seen := make(map[string]struct{}, len(members)+1)
	unique := make([]string, 0, len(members)+1)
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}
	if _, ok := seen[selfID]; !ok {
		unique = append(unique, selfID)
	}
	// Sorted membership makes score ties resolve identically on every
	// instance.
	sort.Strings(unique)

	return &Sharder{selfID: selfID, members: unique}
}

// fnv1a64 is the 64-bit FNV-1a hash.
func fnv1a64(s string) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// score is the rendezvous weight of key on member.
func score(key, member string) uint64 {
	return fnv1a64(key + "::" + member)
}

// Members returns the normalized member list.
func (s *Sharder) Members() []string {
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

// Assign returns the member responsible for key.
func (s *Sharder) Assign(key string) string {
	best := s.members[0]
	bestScore := score(key, best)
	for _, m := range s.members[1:] {
		if sc := score(key, m); sc > bestScore {
			best, bestScore = m, sc
		}
	}
	return best
}

// IsResponsible reports whether this instance owns the given address.
func (s *Sharder) IsResponsible(address string) bool {
	return s.Assign(address) == s.selfID
}
