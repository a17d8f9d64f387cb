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

// Package beamaggregator counts and protects the combos of normalized records with a Beam pipeline.
//
// The pipeline computes the same tables as comboaggregator.CountAll and protection.ProtectTable, for datasets
// that need to be processed by a distributed runner.
package beamaggregator

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/textio"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/transforms/stats"
	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/pipeline/comboaggregator"
	"github.com/google/synthetic-data-aggregation/pipeline/protection"
	"github.com/google/synthetic-data-aggregation/report/aggregatecodec"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

func init() {
	beam.RegisterType(reflect.TypeOf((*addShardKeyFn)(nil)).Elem())
	beam.RegisterType(reflect.TypeOf((*emitCombosFn)(nil)).Elem())
	beam.RegisterType(reflect.TypeOf((*formatAggregateFn)(nil)).Elem())
	beam.RegisterType(reflect.TypeOf((*getShardFn)(nil)).Elem())
	beam.RegisterType(reflect.TypeOf((*protectFn)(nil)).Elem())
	beam.RegisterFunction(toInt64Fn)
}

// FormatRecord formats a normalized record as one line of the pipeline input: the row ID and the encoded
// record separated by a tab. The row ID keeps the line nonempty for records without any pair.
func FormatRecord(id int, record reporttypes.Record) string {
	return strconv.Itoa(id) + "\t" + aggregatecodec.EncodeRecord(record)
}

// ParseRecord parses a line written by FormatRecord.
func ParseRecord(line string) (int, reporttypes.Record, error) {
	cols := strings.SplitN(line, "\t", 2)
	if got, want := len(cols), 2; got != want {
		return 0, nil, fmt.Errorf("got %d columns in line %q, want %d", got, line, want)
	}
	id, err := strconv.Atoi(cols[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid row ID in line %q: %w", line, err)
	}
	if cols[1] == "" {
		return id, reporttypes.Record{}, nil
	}
	_, combo := aggregatecodec.DecodeCombo(cols[1])
	return id, reporttypes.Record(combo), nil
}

// emitCombosFn emits the encoded combos of lengths 1 to LengthLimit for each record.
//
// An empty combo is emitted once per record, so that its count is the number of records.
type emitCombosFn struct {
	LengthLimit int

	recordCounter, comboCounter beam.Counter
}

func (fn *emitCombosFn) Setup() {
	fn.recordCounter = beam.NewCounter("combo-aggregation", "emit-combos-record-count")
	fn.comboCounter = beam.NewCounter("combo-aggregation", "emit-combos-combo-count")
}

func (fn *emitCombosFn) ProcessElement(ctx context.Context, line string, emit func(string)) error {
	_, record, err := ParseRecord(line)
	if err != nil {
		return err
	}
	fn.recordCounter.Inc(ctx, 1)
	emit("")

	limit := fn.LengthLimit
	if limit < 0 || limit > len(record) {
		limit = len(record)
	}
	for length := 1; length <= limit; length++ {
		for _, combo := range comboaggregator.Enumerate(record, length) {
			emit(aggregatecodec.EncodeCombo(combo))
			fn.comboCounter.Inc(ctx, 1)
		}
	}
	return nil
}

func toInt64Fn(combo string, count int) (string, int64) {
	return combo, int64(count)
}

// CountCombos counts the combos of the records in the input collection of lines written by FormatRecord.
//
// The output is a collection of KV<string, int64>, keyed by the encoded combo. The empty combo holds the number
// of records.
func CountCombos(s beam.Scope, records beam.PCollection, lengthLimit int) beam.PCollection {
	s = s.Scope("CountCombos")
	combos := beam.ParDo(s, &emitCombosFn{LengthLimit: lengthLimit}, records)
	return beam.ParDo(s, toInt64Fn, stats.Count(s, combos))
}

// protectFn protects the counts. Combos suppressed to zero are dropped, except the record count.
type protectFn struct {
	Threshold, Precision int64

	suppressedCounter beam.Counter
}

func (fn *protectFn) Setup() {
	fn.suppressedCounter = beam.NewCounter("combo-aggregation", "protect-suppressed-count")
}

func (fn *protectFn) ProcessElement(ctx context.Context, combo string, count int64, emit func(string, int64)) {
	protected := protection.Protect(count, fn.Threshold, fn.Precision)
	if protected == 0 && combo != "" {
		fn.suppressedCounter.Inc(ctx, 1)
		return
	}
	emit(combo, protected)
}

// ProtectCounts applies protection.Protect to a collection of KV<string, int64>.
func ProtectCounts(s beam.Scope, counts beam.PCollection, threshold, precision int64) beam.PCollection {
	s = s.Scope("ProtectCounts")
	return beam.ParDo(s, &protectFn{Threshold: threshold, Precision: precision}, counts)
}

// formatAggregateFn converts the counts into aggregate lines.
type formatAggregateFn struct{}

func (fn *formatAggregateFn) ProcessElement(combo string, count int64, emit func(string)) {
	emit(aggregatecodec.FormatAggregateLine(combo, count))
}

type addShardKeyFn struct {
	TotalShards int64
}

func (fn *addShardKeyFn) ProcessElement(line string, emit func(int64, string)) {
	emit(rand.Int63n(fn.TotalShards), line)
}

type getShardFn struct {
	Shard int64
}

func (fn *getShardFn) ProcessElement(key int64, line string, emit func(string)) {
	if fn.Shard == key {
		emit(line)
	}
}

// ShardGlob returns the pattern matching the files written by writeNShardedFiles for n shards, and no shard
// left by a run with another number of shards.
func ShardGlob(outputName string, n int64) string {
	if n <= 1 {
		return outputName
	}
	return utils.AddStrInPath(outputName, fmt.Sprintf("-*-%d", n))
}

// writeNShardedFiles writes the text files in shards.
func writeNShardedFiles(s beam.Scope, outputName string, n int64, lines beam.PCollection) {
	s = s.Scope("WriteNShardedFiles")

	if n <= 1 {
		textio.Write(s, outputName, lines)
		return
	}
	keyed := beam.ParDo(s, &addShardKeyFn{TotalShards: n}, lines)
	for i := int64(0); i < n; i++ {
		shard := beam.ParDo(s, &getShardFn{Shard: i}, keyed)
		textio.Write(s, utils.AddStrInPath(outputName, fmt.Sprintf("-%d-%d", i+1, n)), shard)
	}
}

func writeAggregates(s beam.Scope, counts beam.PCollection, outputName string, shards int64) {
	s = s.Scope("WriteAggregates")
	formatted := beam.ParDo(s, &formatAggregateFn{}, counts)
	writeNShardedFiles(s, outputName, shards, formatted)
}

// AggregateParams contains necessary parameters for function AggregateRecords().
type AggregateParams struct {
	// Input record file URI, each line contains a record written by FormatRecord.
	RecordURI string
	// Output file URI for the raw counts. The raw counts are not written if it is empty.
	SensitiveAggregatesURI string
	// Output file URI for the protected counts.
	ReportableAggregatesURI string
	// Maximum combo length; negative values count combos of any length.
	LengthLimit int
	// Parameters of protection.Protect.
	Threshold, Precision int64
	// Number of shards of each output.
	Shards int64
}

// AggregateRecords reads the normalized records, counts their combos, and writes the raw and the protected
// counts in sharded files without header.
//
// The shards are merged into aggregate files with ConsolidateAggregates.
func AggregateRecords(scope beam.Scope, params *AggregateParams) {
	scope = scope.Scope("AggregateRecords")

	records := textio.Read(scope, params.RecordURI)
	resharded := beam.Reshuffle(scope, records)
	counts := CountCombos(scope, resharded, params.LengthLimit)

	if params.SensitiveAggregatesURI != "" {
		writeAggregates(scope, counts, params.SensitiveAggregatesURI, params.Shards)
	}
	protected := ProtectCounts(scope, counts, params.Threshold, params.Precision)
	writeAggregates(scope, protected, params.ReportableAggregatesURI, params.Shards)
}

// ConsolidateAggregates merges the output of AggregateRecords written in the given number of shards into one
// aggregate file with a header, and returns the table.
func ConsolidateAggregates(ctx context.Context, outputName string, shards int64, filename, header string) (reporttypes.CountTable, error) {
	lines, err := utils.ReadGlobLines(ctx, ShardGlob(outputName, shards))
	if err != nil {
		return nil, err
	}

	var recordCount int64
	body := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "\t") {
			if _, count, err := aggregatecodec.ParseAggregateLine(line); err == nil {
				recordCount = count
			}
			continue
		}
		body = append(body, line)
	}

	table := aggregatecodec.ParseAggregates(append([]string{header}, body...))
	if err := aggregatecodec.WriteAggregates(ctx, filename, header, table, recordCount, false); err != nil {
		return nil, err
	}
	log.Infof("consolidated %d shard lines of %s into %s", len(lines), outputName, filename)
	return table, nil
}
