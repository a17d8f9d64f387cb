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

package rowindex

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/report/reportutils"
)

func testMicrodata() *reportutils.Microdata {
	return &reportutils.Microdata{
		Columns: []string{"A", "B", "C"},
		Rows: [][]string{
			{"1", "x", "0"},
			{"1", "0", ""},
			{"2", "x", "0"},
		},
	}
}

func TestBuildAttributeIndex(t *testing.T) {
	data := testMicrodata()
	records := reportutils.GenRecords(data, []string{"C"})

	got := BuildAttributeIndex(records)
	want := AttributeIndex{
		{Attribute: "A", Value: "1"}: {0, 1},
		{Attribute: "A", Value: "2"}: {2},
		{Attribute: "B", Value: "x"}: {0, 2},
		{Attribute: "C", Value: "0"}: {0, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attribute index mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildColumnValueIndex(t *testing.T) {
	got := BuildColumnValueIndex(testMicrodata(), []string{"C"})
	want := ColumnValueIndex{
		"A": {"1": {0, 1}, "2": {2}},
		"B": {"x": {0, 2}, "": {1}},
		"C": {"0": {0, 2}, "": {1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("column value index mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadIndices(t *testing.T) {
	fileDir, err := ioutil.TempDir("/tmp", "test-indices")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(fileDir)

	data := testMicrodata()
	want := BuildIndices(data, reportutils.GenRecords(data, nil), nil)

	ctx := context.Background()
	filename := path.Join(fileDir, "indices.cbor")
	if err := SaveIndices(ctx, filename, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadIndices(ctx, filename)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2}, got.RowIDs("B", "x")); diff != "" {
		t.Errorf("row IDs mismatch (-want +got):\n%s", diff)
	}
	if ids := got.RowIDs("C", "0"); ids != nil {
		t.Errorf("expect no row IDs for a non-sensitive zero, got %v", ids)
	}

	if _, err := LoadIndices(ctx, path.Join(fileDir, "missing.cbor")); err == nil {
		t.Error("expect error loading missing indices")
	}
}

func TestRowIDsMissingPair(t *testing.T) {
	idx := &Indices{Attributes: AttributeIndex{reporttypes.Pair{Attribute: "A", Value: "1"}: {0}}}
	if ids := idx.RowIDs("A", "2"); ids != nil {
		t.Errorf("expect nil, got %v", ids)
	}
}
