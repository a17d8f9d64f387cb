// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reporttypes contains the data types shared by the aggregation and the report processing.
package reporttypes

import (
	"sort"
	"strings"
)

// Pair is one (attribute, value) cell of a microdata row.
type Pair struct {
	Attribute string
	Value     string
}

// String returns the "attribute:value" form of the pair.
func (p Pair) String() string {
	return p.Attribute + ":" + p.Value
}

// sortKey is the key that defines the canonical order of pairs.
func (p Pair) sortKey() string {
	return strings.ToLower(p.String())
}

// Record is a canonically sorted set of pairs from one row, with at most one pair per attribute.
type Record []Pair

// Combo is a canonically sorted subset of the pairs of one Record.
type Combo []Pair

// PairLess reports whether pair a is ordered before pair b in the canonical order.
//
// Pairs are ordered by the lowercase "attribute:value" string. Ties of the lowercase form are broken
// by the original string so that the order never depends on the input order.
func PairLess(a, b Pair) bool {
	ka, kb := a.sortKey(), b.sortKey()
	if ka != kb {
		return ka < kb
	}
	return a.String() < b.String()
}

// SortPairs sorts the pairs in place into the canonical order.
func SortPairs(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return PairLess(pairs[i], pairs[j])
	})
}

// IsCanonical checks if the pairs are already in the canonical order.
func IsCanonical(pairs []Pair) bool {
	for i := 1; i < len(pairs); i++ {
		if PairLess(pairs[i], pairs[i-1]) {
			return false
		}
	}
	return true
}

// ComboCount maps the canonical string of a combo to its number of occurrences.
type ComboCount map[string]int64

// CountTable maps a combo length to the counts of all combos with that length.
type CountTable map[int]ComboCount

// Add increases the count of the combo with the given length and key.
func (t CountTable) Add(length int, key string, count int64) {
	counts, ok := t[length]
	if !ok {
		counts = make(ComboCount)
		t[length] = counts
	}
	counts[key] += count
}

// Lengths returns the combo lengths in the table in ascending order.
func (t CountTable) Lengths() []int {
	lengths := make([]int, 0, len(t))
	for l := range t {
		lengths = append(lengths, l)
	}
	sort.Ints(lengths)
	return lengths
}

// Entry is one row of a count table.
type Entry struct {
	Length int
	Combo  string
	Count  int64
}

// Entries flattens the table in the order used for reports: by length ascending, then count descending,
// then combo string ascending.
func (t CountTable) Entries() []Entry {
	var entries []Entry
	for _, l := range t.Lengths() {
		for key, count := range t[l] {
			entries = append(entries, Entry{Length: l, Combo: key, Count: count})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Length != b.Length {
			return a.Length < b.Length
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Combo < b.Combo
	})
	return entries
}
