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

// Package rowindex builds the indices from attribute values to the IDs of the rows containing them.
//
// The indices are consumed by the synthetic data generator and the navigator, and are read-only once built.
package rowindex

import (
	"context"
	"fmt"
	"sort"

	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/report/reportutils"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

// AttributeIndex maps each (attribute, value) pair to the sorted IDs of the records containing it.
type AttributeIndex map[reporttypes.Pair][]int

// ColumnValueIndex maps a column and a raw value to the IDs of the rows with that value, in row order.
//
// A "0" value is indexed under the empty value unless its column is a sensitive-zero column.
type ColumnValueIndex map[string]map[string][]int

// Indices contains both indices built for one dataset.
type Indices struct {
	Attributes   AttributeIndex
	ColumnValues ColumnValueIndex
}

// BuildAttributeIndex indexes the pairs of the normalized records. The row ID is the position in records.
func BuildAttributeIndex(records []reporttypes.Record) AttributeIndex {
	index := make(AttributeIndex)
	for id, r := range records {
		for _, p := range r {
			ids := index[p]
			// Row IDs increase with the loop, so a duplicate can only be the last one.
			if n := len(ids); n > 0 && ids[n-1] == id {
				continue
			}
			index[p] = append(ids, id)
		}
	}
	return index
}

// BuildColumnValueIndex indexes every cell of the microdata, including the empty ones.
func BuildColumnValueIndex(data *reportutils.Microdata, sensitiveZeros []string) ColumnValueIndex {
	zeros := reportutils.SensitiveZeroSet(sensitiveZeros)
	index := make(ColumnValueIndex, len(data.Columns))
	for _, c := range data.Columns {
		if _, ok := index[c]; !ok {
			index[c] = make(map[string][]int)
		}
	}
	for id, row := range data.Rows {
		for i, c := range data.Columns {
			var val string
			if i < len(row) {
				val = row[i]
			}
			if val == "0" && !zeros[c] {
				val = ""
			}
			index[c][val] = append(index[c][val], id)
		}
	}
	return index
}

// BuildIndices builds both indices from the microdata and its normalized records.
func BuildIndices(data *reportutils.Microdata, records []reporttypes.Record, sensitiveZeros []string) *Indices {
	return &Indices{
		Attributes:   BuildAttributeIndex(records),
		ColumnValues: BuildColumnValueIndex(data, sensitiveZeros),
	}
}

// RowIDs returns the IDs of the rows containing the pair, or nil.
func (idx *Indices) RowIDs(attribute, value string) []int {
	return idx.Attributes[reporttypes.Pair{Attribute: attribute, Value: value}]
}

type attributeEntry struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	RowIDs    []int  `json:"row_ids"`
}

// snapshot is the serialized form of Indices; CBOR maps cannot be keyed by the Pair struct.
type snapshot struct {
	Attributes   []attributeEntry            `json:"attributes"`
	ColumnValues map[string]map[string][]int `json:"column_values"`
}

func (idx *Indices) toSnapshot() *snapshot {
	s := &snapshot{ColumnValues: idx.ColumnValues}
	for p, ids := range idx.Attributes {
		s.Attributes = append(s.Attributes, attributeEntry{Attribute: p.Attribute, Value: p.Value, RowIDs: ids})
	}
	sort.Slice(s.Attributes, func(i, j int) bool {
		return reporttypes.PairLess(
			reporttypes.Pair{Attribute: s.Attributes[i].Attribute, Value: s.Attributes[i].Value},
			reporttypes.Pair{Attribute: s.Attributes[j].Attribute, Value: s.Attributes[j].Value})
	})
	return s
}

func (s *snapshot) toIndices() *Indices {
	idx := &Indices{
		Attributes:   make(AttributeIndex, len(s.Attributes)),
		ColumnValues: s.ColumnValues,
	}
	if idx.ColumnValues == nil {
		idx.ColumnValues = make(ColumnValueIndex)
	}
	for _, e := range s.Attributes {
		idx.Attributes[reporttypes.Pair{Attribute: e.Attribute, Value: e.Value}] = e.RowIDs
	}
	return idx
}

// SaveIndices writes the indices in CBOR format to a local or GCS file.
func SaveIndices(ctx context.Context, filename string, idx *Indices) error {
	b, err := utils.MarshalCBOR(idx.toSnapshot())
	if err != nil {
		return err
	}
	if err := utils.WriteBytes(ctx, b, filename); err != nil {
		return fmt.Errorf("writing indices to %q: %w", filename, err)
	}
	log.Infof("wrote indices of %d attribute values to %s", len(idx.Attributes), filename)
	return nil
}

// LoadIndices reads the indices written by SaveIndices.
func LoadIndices(ctx context.Context, filename string) (*Indices, error) {
	b, err := utils.ReadBytes(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("reading indices from %q: %w", filename, err)
	}
	s := &snapshot{}
	if err := utils.UnmarshalCBOR(b, s); err != nil {
		return nil, fmt.Errorf("parsing indices in %q: %w", filename, err)
	}
	return s.toIndices(), nil
}
