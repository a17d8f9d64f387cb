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

// Package protection rounds and thresholds the aggregated counts before they are reported.
//
// This is a deterministic suppression heuristic, not a differentially private mechanism.
package protection

import (
	"fmt"
	"math"

	"github.com/google/synthetic-data-aggregation/report/reporttypes"
)

// roundHalfEven rounds a non-negative value to the nearest multiple of precision, ties to the even multiple.
//
// A value that would round above math.MaxInt64 gets the largest multiple of precision that fits in an int64.
func roundHalfEven(value, precision int64) int64 {
	q, r := value/precision, value%precision
	// Compare r with precision-r rather than 2*r with precision, which can overflow.
	switch {
	case r > precision-r:
		q++
	case r == precision-r && q%2 != 0:
		q++
	}
	if q > math.MaxInt64/precision {
		q = math.MaxInt64 / precision
	}
	return q * precision
}

// Protect rounds the value to the closest multiple of precision and reports it only if the result is at or
// above the threshold, else 0.
//
// Ties are rounded half to even, e.g. with precision 10, 15 becomes 20 and 25 becomes 20. A non-positive
// precision is treated as 1, and a negative value is treated as 0.
func Protect(value, threshold, precision int64) int64 {
	if precision <= 0 {
		precision = 1
	}
	if value < 0 {
		value = 0
	}
	rounded := roundHalfEven(value, precision)
	if rounded >= threshold {
		return rounded
	}
	return 0
}

// ProtectTable applies Protect to every count of the table and returns a new table.
func ProtectTable(table reporttypes.CountTable, threshold, precision int64) reporttypes.CountTable {
	protected := make(reporttypes.CountTable, len(table))
	for length, counts := range table {
		pc := make(reporttypes.ComboCount, len(counts))
		for key, count := range counts {
			pc[key] = Protect(count, threshold, precision)
		}
		protected[length] = pc
	}
	return protected
}

// LengthSummary describes how many combos of one length survive the protection.
type LengthSummary struct {
	Length       int
	Combos       int
	Reportable   int
	SuppressedPC float64
}

// SummarizeLengths compares the raw and the protected tables length by length.
func SummarizeLengths(raw, protected reporttypes.CountTable) []LengthSummary {
	var summaries []LengthSummary
	for _, length := range raw.Lengths() {
		s := LengthSummary{Length: length, Combos: len(raw[length])}
		for _, count := range protected[length] {
			if count > 0 {
				s.Reportable++
			}
		}
		if s.Combos > 0 {
			s.SuppressedPC = 100 * float64(s.Combos-s.Reportable) / float64(s.Combos)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// FormatLengthSummaries converts the summaries into tab-separated lines with a header.
func FormatLengthSummaries(summaries []LengthSummary) []string {
	lines := []string{"selections\tcombos\treportable_combos\tsuppressed_pct"}
	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf("%d\t%d\t%d\t%.2f", s.Length, s.Combos, s.Reportable, s.SuppressedPC))
	}
	return lines
}
