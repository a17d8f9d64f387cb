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

// Package reportutils contains util functions for loading the sensitive microdata and normalizing its rows.
package reportutils

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

// Microdata is a table of cleaned string cells with a header.
type Microdata struct {
	Columns []string
	Rows    [][]string
}

// CleanValue prepares a raw cell for aggregation.
//
// Missing values ("nan") become empty, float-coerced integers lose their trailing ".0", and the reserved
// delimiters of the aggregate encoding are replaced: ";" with ".," and ":" with "..".
func CleanValue(v string) string {
	if v == "nan" {
		return ""
	}
	v = strings.TrimSuffix(v, ".0")
	v = strings.ReplaceAll(v, ";", ".,")
	return strings.ReplaceAll(v, ":", "..")
}

// SensitiveZeroSet converts the list of sensitive-zero columns into a set.
func SensitiveZeroSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}

// NormalizeRow converts a row into a Record of (column, value) pairs.
//
// Empty cells are dropped. A "0" cell is dropped unless its column is a sensitive-zero column, where zero is a
// reportable value. The surviving pairs are sorted by the lowercase "column:value" string, so the result
// does not depend on the order of the columns.
func NormalizeRow(row []string, columns []string, sensitiveZeros map[string]bool) reporttypes.Record {
	n := len(columns)
	if len(row) < n {
		n = len(row)
	}

	record := make(reporttypes.Record, 0, n)
	for i := 0; i < n; i++ {
		val := row[i]
		if val == "" || (val == "0" && !sensitiveZeros[columns[i]]) {
			continue
		}
		record = append(record, reporttypes.Pair{Attribute: columns[i], Value: val})
	}
	reporttypes.SortPairs(record)
	return record
}

// GenRecords normalizes all the rows of the microdata.
func GenRecords(data *Microdata, sensitiveZeros []string) []reporttypes.Record {
	zeros := SensitiveZeroSet(sensitiveZeros)
	records := make([]reporttypes.Record, len(data.Rows))
	for i, row := range data.Rows {
		records[i] = NormalizeRow(row, data.Columns, zeros)
	}
	return records
}

// MaxRecordLength returns the largest number of pairs in any of the records.
func MaxRecordLength(records []reporttypes.Record) int {
	var max int
	for _, r := range records {
		if len(r) > max {
			max = len(r)
		}
	}
	return max
}

// ParseMicrodata parses delimited microdata with a header line.
//
// If recordLimit is positive, only the first recordLimit rows are kept. If useColumns is not empty, only
// these columns are kept, in the given order.
func ParseMicrodata(content []byte, delimiter string, recordLimit int, useColumns []string) (*Microdata, error) {
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size == 0 || size != len(delimiter) {
		return nil, fmt.Errorf("expect a single character delimiter, got %q", delimiter)
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = comma
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read microdata header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	selected := make([]int, len(header))
	for i := range header {
		selected[i] = i
	}
	if len(useColumns) > 0 {
		position := make(map[string]int, len(header))
		for i, c := range header {
			position[c] = i
		}
		selected = selected[:0]
		for _, c := range useColumns {
			i, ok := position[c]
			if !ok {
				return nil, fmt.Errorf("column %q not found in header %v", c, header)
			}
			selected = append(selected, i)
		}
	}

	data := &Microdata{Columns: make([]string, len(selected))}
	for i, idx := range selected {
		data.Columns[i] = header[idx]
	}

	for line := 2; recordLimit <= 0 || len(data.Rows) < recordLimit; line++ {
		cols, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read microdata line %d: %w", line, err)
		}

		row := make([]string, len(selected))
		for i, idx := range selected {
			row[i] = CleanValue(cols[idx])
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

// ReadMicrodata reads the microdata from a local or GCS file.
func ReadMicrodata(ctx context.Context, filename, delimiter string, recordLimit int, useColumns []string) (*Microdata, error) {
	content, err := utils.ReadBytes(ctx, filename)
	if err != nil {
		return nil, err
	}
	data, err := ParseMicrodata(content, delimiter, recordLimit, useColumns)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", filename, err)
	}
	log.Infof("loaded %d records with %d columns from %s", len(data.Rows), len(data.Columns), filename)
	return data, nil
}
