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

// Package aggregatecodec encodes the combos and persists the aggregate count tables as tab-separated text.
//
// A combo is written as "attribute:value" pairs joined with ";". An aggregate file has a header line
// followed by one "combo<TAB>count" line per combo; lines with an empty combo are placeholders, for example
// the record count, and are skipped when the table is loaded.
package aggregatecodec

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

const (
	pairSeparator  = ";"
	valueSeparator = ":"
	fieldSeparator = "\t"
)

// Headers of the aggregate files.
const (
	SensitiveHeader  = "selections\tcount"
	ReportableHeader = "selections\tprotected_count"
)

// EncodeCombo joins the pairs of the combo in their existing order.
func EncodeCombo(combo reporttypes.Combo) string {
	var b strings.Builder
	for i, p := range combo {
		if i > 0 {
			b.WriteString(pairSeparator)
		}
		b.WriteString(p.Attribute)
		b.WriteString(valueSeparator)
		b.WriteString(p.Value)
	}
	return b.String()
}

// EncodeRecord encodes a whole record the same way as a combo.
func EncodeRecord(record reporttypes.Record) string {
	return EncodeCombo(reporttypes.Combo(record))
}

// DecodeCombo parses an encoded combo and returns its length together with the pairs.
//
// The length is the number of ";"-separated segments. Segments that do not consist of exactly one attribute
// and one value are dropped from the returned combo, so the combo can be shorter than the length.
// The empty string is one empty segment, so the empty combo decodes to length 1 with no pairs.
func DecodeCombo(s string) (int, reporttypes.Combo) {
	segments := strings.Split(s, pairSeparator)
	combo := make(reporttypes.Combo, 0, len(segments))
	for _, seg := range segments {
		parts := strings.Split(seg, valueSeparator)
		if len(parts) != 2 {
			log.V(1).Infof("dropping malformed segment %q of combo %q", seg, s)
			continue
		}
		combo = append(combo, reporttypes.Pair{Attribute: parts[0], Value: parts[1]})
	}
	return len(segments), combo
}

// FormatAggregateLine formats one line of an aggregate file.
func FormatAggregateLine(combo string, count int64) string {
	return combo + fieldSeparator + strconv.FormatInt(count, 10)
}

// ParseAggregateLine parses one line of an aggregate file into the encoded combo and its count.
func ParseAggregateLine(line string) (string, int64, error) {
	cols := strings.Split(line, fieldSeparator)
	if got, want := len(cols), 2; got != want {
		return "", 0, fmt.Errorf("got %d columns in line %q, want %d", got, line, want)
	}
	combo := strings.TrimSpace(cols[0])
	count, err := strconv.ParseInt(strings.TrimSpace(cols[1]), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid count in line %q: %w", line, err)
	}
	return combo, count, nil
}

// FormatAggregates converts the table into the lines of an aggregate file.
//
// The first line after the header holds the record count with an empty combo. Combos with a zero count are
// omitted when skipZeros is set.
func FormatAggregates(header string, table reporttypes.CountTable, recordCount int64, skipZeros bool) []string {
	lines := []string{header, FormatAggregateLine("", recordCount)}
	for _, e := range table.Entries() {
		if skipZeros && e.Count == 0 {
			continue
		}
		lines = append(lines, FormatAggregateLine(e.Combo, e.Count))
	}
	return lines
}

// ParseAggregates rebuilds a count table from the lines of an aggregate file, including the header line.
//
// Malformed lines are skipped with a warning.
func ParseAggregates(lines []string) reporttypes.CountTable {
	table := make(reporttypes.CountTable)
	var skipped int
	for i, line := range lines {
		if i == 0 {
			continue
		}
		combo, count, err := ParseAggregateLine(line)
		if err != nil {
			skipped++
			log.V(1).Infof("skipping line %d: %v", i+1, err)
			continue
		}
		if combo == "" {
			continue
		}
		length, pairs := DecodeCombo(combo)
		if len(pairs) != length {
			log.V(1).Infof("line %d: combo %q has %d malformed segments", i+1, combo, length-len(pairs))
		}
		counts, ok := table[length]
		if !ok {
			counts = make(reporttypes.ComboCount)
			table[length] = counts
		}
		counts[EncodeCombo(pairs)] = count
	}
	if skipped > 0 {
		log.Warningf("skipped %d malformed aggregate lines", skipped)
	}
	return table
}

// WriteAggregates writes the table to a local or GCS file.
func WriteAggregates(ctx context.Context, filename, header string, table reporttypes.CountTable, recordCount int64, skipZeros bool) error {
	lines := FormatAggregates(header, table, recordCount, skipZeros)
	if err := utils.WriteLines(ctx, lines, filename); err != nil {
		return fmt.Errorf("writing aggregates to %q: %w", filename, err)
	}
	log.Infof("wrote %d aggregates to %s", len(lines)-2, filename)
	return nil
}

// ReadAggregates loads a table from a local or GCS aggregate file.
func ReadAggregates(ctx context.Context, filename string) (reporttypes.CountTable, error) {
	lines, err := utils.ReadLines(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("reading aggregates from %q: %w", filename, err)
	}
	return ParseAggregates(lines), nil
}
