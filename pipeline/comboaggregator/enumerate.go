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

package comboaggregator

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
)

const maxPreallocatedCombos = 1 << 20

func canonical(record reporttypes.Record) reporttypes.Record {
	if reporttypes.IsCanonical(record) {
		return record
	}
	sorted := make(reporttypes.Record, len(record))
	copy(sorted, record)
	reporttypes.SortPairs(sorted)
	return sorted
}

// Enumerate returns all the combos with the given length drawn from the record.
//
// Pairs of a record have distinct attributes, so the returned combos are distinct. Each combo keeps the
// canonical order of the record. The number of combos is C(len(record), length), which grows exponentially
// with the record width.
func Enumerate(record reporttypes.Record, length int) []reporttypes.Combo {
	n := len(record)
	if length <= 0 || length > n {
		return nil
	}
	record = canonical(record)
	if length == n {
		return []reporttypes.Combo{reporttypes.Combo(record)}
	}

	var capacity int
	if est := combin.GeneralizedBinomial(float64(n), float64(length)); est < maxPreallocatedCombos {
		capacity = int(math.Round(est))
	}
	combos := make([]reporttypes.Combo, 0, capacity)
	gen := combin.NewCombinationGenerator(n, length)
	idx := make([]int, length)
	for gen.Next() {
		gen.Combination(idx)
		combo := make(reporttypes.Combo, length)
		for i, j := range idx {
			combo[i] = record[j]
		}
		combos = append(combos, combo)
	}
	return combos
}

// EstimateCombos returns the number of combos with the given length emitted by all the records.
//
// It bounds the number of distinct combo keys held in memory while counting one length. The value is a
// float64 because it overflows integers for wide records.
func EstimateCombos(records []reporttypes.Record, length int) float64 {
	if length <= 0 {
		return 0
	}
	var total float64
	for _, r := range records {
		if n := len(r); n >= length {
			total += combin.GeneralizedBinomial(float64(n), float64(length))
		}
	}
	return total
}
