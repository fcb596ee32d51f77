// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package canon

import (
	"sort"

	"github.com/AleutianAI/shake/services/shake/graph"
)

// Set is a collection of symbols deduplicated by structural key.
//
// Description:
//
//	The first symbol added under a key is the representative of that key.
//	Contains answers for any symbol with the same key, so a reference-site
//	object and the definition it denotes need not be pointer-equal.
//	Keys are memoized per symbol pointer; the names and back-references of
//	a symbol must not change while it is tracked.
//
// Thread Safety: NOT safe for concurrent use.
type Set struct {
	keyer  keyer
	items  map[string]graph.Symbol
	order  []graph.Symbol
	counts [graph.NumKinds]int
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{
		keyer: keyer{memo: make(map[graph.Symbol]string)},
		items: make(map[string]graph.Symbol),
	}
}

// Key returns the memoized structural key of s.
func (s *Set) Key(sym graph.Symbol) string {
	return s.keyer.key(sym)
}

// Add inserts sym and reports whether its key was new. nil is never added.
func (s *Set) Add(sym graph.Symbol) bool {
	if graph.IsNil(sym) {
		return false
	}
	k := s.keyer.key(sym)
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = sym
	s.order = append(s.order, sym)
	s.counts[sym.Kind()]++
	return true
}

// Contains reports whether a symbol with the key of sym is in the set.
func (s *Set) Contains(sym graph.Symbol) bool {
	if graph.IsNil(sym) {
		return false
	}
	_, ok := s.items[s.keyer.key(sym)]
	return ok
}

// ContainsKey reports whether key is in the set.
func (s *Set) ContainsKey(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Get returns the representative symbol stored under key.
func (s *Set) Get(key string) (graph.Symbol, bool) {
	sym, ok := s.items[key]
	return sym, ok
}

// Len returns the number of distinct keys.
func (s *Set) Len() int { return len(s.items) }

// Symbols returns the representatives in insertion order.
func (s *Set) Symbols() []graph.Symbol {
	out := make([]graph.Symbol, len(s.order))
	copy(out, s.order)
	return out
}

// Keys returns every key, sorted.
func (s *Set) Keys() []string {
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CountKind returns the number of members of kind k.
func (s *Set) CountKind(k graph.Kind) int {
	if k < 0 || k >= graph.NumKinds {
		return 0
	}
	return s.counts[k]
}

// CountByKind returns the non-zero member counts per kind.
func (s *Set) CountByKind() map[graph.Kind]int {
	out := make(map[graph.Kind]int)
	for k, n := range s.counts {
		if n > 0 {
			out[graph.Kind(k)] = n
		}
	}
	return out
}
