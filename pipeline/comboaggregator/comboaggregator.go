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

// Package comboaggregator counts the attribute-value combinations of normalized records.
//
// Combos of each length are counted by a pool of workers that share no state: every worker counts the combos
// of its own shard of records, and the partial counts are summed by the caller after all the workers return.
// Integer addition is commutative, so the result does not depend on the number of workers.
//
// A record with n pairs emits C(n, k) combos of length k, so the work and the memory grow exponentially with
// the record width. CountParams.MaxCombosPerLength turns this into an ErrComboLimit error before a length is
// counted.
package comboaggregator

import (
	"errors"
	"fmt"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"github.com/google/synthetic-data-aggregation/report/aggregatecodec"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
)

// ErrComboLimit is matched by the errors returned when counting a length would exceed the combo limit.
var ErrComboLimit = errors.New("combo limit exceeded")

// ComboLimitError reports a combo length whose worst-case number of combos is over the limit.
type ComboLimitError struct {
	Length    int
	Estimated float64
	Limit     float64
}

func (e *ComboLimitError) Error() string {
	return fmt.Sprintf("%v: counting length %d emits up to %.0f combos, limit is %.0f", ErrComboLimit, e.Length, e.Estimated, e.Limit)
}

// Is makes errors.Is(err, ErrComboLimit) true for a *ComboLimitError.
func (e *ComboLimitError) Is(target error) bool {
	return target == ErrComboLimit
}

// CountParams contains necessary parameters for function CountAll().
type CountParams struct {
	// Maximum combo length to count. A negative value counts up to the longest record.
	LengthLimit int
	// Number of concurrent workers counting one length.
	Parallelism int
	// Maximum number of combos emitted for one length as estimated by EstimateCombos; 0 means no limit.
	MaxCombosPerLength float64
}

// countShard counts the combos of one length in a shard of records.
func countShard(records []reporttypes.Record, length int) reporttypes.ComboCount {
	counts := make(reporttypes.ComboCount)
	for _, r := range records {
		for _, combo := range Enumerate(r, length) {
			counts[aggregatecodec.EncodeCombo(combo)]++
		}
	}
	return counts
}

func splitShards(records []reporttypes.Record, parallelism int) [][]reporttypes.Record {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(records) {
		parallelism = len(records)
	}
	if parallelism == 0 {
		return nil
	}

	size := (len(records) + parallelism - 1) / parallelism
	var shards [][]reporttypes.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		shards = append(shards, records[start:end])
	}
	return shards
}

// CountLength counts the combos of one length over all the records with the given number of workers.
func CountLength(records []reporttypes.Record, length, parallelism int) reporttypes.ComboCount {
	shards := splitShards(records, parallelism)
	partials := make([]reporttypes.ComboCount, len(shards))

	var g errgroup.Group
	for i, shard := range shards {
		i, shard := i, shard // https://golang.org/doc/faq#closures_and_goroutines
		g.Go(func() error {
			partials[i] = countShard(shard, length)
			return nil
		})
	}
	// The workers never fail.
	g.Wait()

	result := make(reporttypes.ComboCount)
	for _, partial := range partials {
		for key, count := range partial {
			result[key] += count
		}
	}
	return result
}

// CountAll counts the combos of lengths from 1 to the length limit.
//
// Lengths are counted one after another, so only the table of one length is being built at any time.
func CountAll(records []reporttypes.Record, params *CountParams) (reporttypes.CountTable, error) {
	lengthLimit := params.LengthLimit
	if lengthLimit < 0 {
		for _, r := range records {
			if len(r) > lengthLimit {
				lengthLimit = len(r)
			}
		}
	}

	table := make(reporttypes.CountTable)
	for length := 1; length <= lengthLimit; length++ {
		estimated := EstimateCombos(records, length)
		if params.MaxCombosPerLength > 0 && estimated > params.MaxCombosPerLength {
			return nil, &ComboLimitError{Length: length, Estimated: estimated, Limit: params.MaxCombosPerLength}
		}

		log.Infof("counting combos of length %d, up to %.0f combos", length, estimated)
		counts := CountLength(records, length, params.Parallelism)
		if len(counts) == 0 {
			log.Infof("no record has %d pairs, stop counting", length)
			break
		}
		table[length] = counts
		log.Infof("found %d distinct combos of length %d", len(counts), length)
	}
	return table, nil
}
