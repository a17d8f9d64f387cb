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

package aggregatecodec

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

func TestEncodeDecodeCombo(t *testing.T) {
	for _, combo := range []reporttypes.Combo{
		{{Attribute: "A", Value: "1"}},
		{{Attribute: "A", Value: "1"}, {Attribute: "B", Value: "x"}},
		{{Attribute: "age", Value: "30-40"}, {Attribute: "city", Value: "Paris"}, {Attribute: "sex", Value: "F"}},
	} {
		encoded := EncodeCombo(combo)
		length, got := DecodeCombo(encoded)
		if length != len(combo) {
			t.Errorf("DecodeCombo(%q) length = %d, want %d", encoded, length, len(combo))
		}
		if diff := cmp.Diff(combo, got); diff != "" {
			t.Errorf("combo mismatch for %q (-want +got):\n%s", encoded, diff)
		}
	}
}

func TestEncodeCombo(t *testing.T) {
	combo := reporttypes.Combo{{Attribute: "A", Value: "1"}, {Attribute: "B", Value: "x"}}
	if got, want := EncodeCombo(combo), "A:1;B:x"; got != want {
		t.Errorf("want encoded combo %q, got %q", want, got)
	}
	if got := EncodeCombo(nil); got != "" {
		t.Errorf("want empty string for empty combo, got %q", got)
	}
}

func TestDecodeMalformedSegments(t *testing.T) {
	length, got := DecodeCombo("A:1;broken;B:x:y;C:2")
	if want := 4; length != want {
		t.Errorf("want length %d, got %d", want, length)
	}
	want := reporttypes.Combo{{Attribute: "A", Value: "1"}, {Attribute: "C", Value: "2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("combo mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEmptyCombo(t *testing.T) {
	length, got := DecodeCombo(EncodeCombo(nil))
	if want := 1; length != want {
		t.Errorf("want length %d, got %d", want, length)
	}
	if len(got) != 0 {
		t.Errorf("want no pairs, got %v", got)
	}
}

func TestParseAggregateLine(t *testing.T) {
	combo, count, err := ParseAggregateLine("A:1;B:x\t20")
	if err != nil {
		t.Fatal(err)
	}
	if combo != "A:1;B:x" || count != 20 {
		t.Errorf("want (%q, %d), got (%q, %d)", "A:1;B:x", 20, combo, count)
	}

	for _, line := range []string{"A:1", "A:1\t20\textra", "A:1\tten"} {
		if _, _, err := ParseAggregateLine(line); err == nil {
			t.Errorf("expect error for line %q", line)
		}
	}
}

func TestFormatAggregates(t *testing.T) {
	table := reporttypes.CountTable{
		1: {"A:1": 30, "B:x": 20, "B:y": 0},
		2: {"A:1;B:x": 20},
	}
	got := FormatAggregates(ReportableHeader, table, 30, true)
	want := []string{
		"selections\tprotected_count",
		"\t30",
		"A:1\t30",
		"B:x\t20",
		"A:1;B:x\t20",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReadAggregates(t *testing.T) {
	fileDir, err := ioutil.TempDir("/tmp", "test-aggregates")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(fileDir)

	ctx := context.Background()
	want := reporttypes.CountTable{
		1: {"A:1": 3, "B:x": 2, "B:y": 1},
		2: {"A:1;B:x": 2, "A:1;B:y": 1},
	}
	filename := path.Join(fileDir, "aggregates.tsv")
	if err := WriteAggregates(ctx, filename, SensitiveHeader, want, 3, false); err != nil {
		t.Fatal(err)
	}
	got, err := ReadAggregates(ctx, filename)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAggregatesSkipsMalformedLines(t *testing.T) {
	fileDir, err := ioutil.TempDir("/tmp", "test-aggregates")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(fileDir)

	ctx := context.Background()
	filename := path.Join(fileDir, "aggregates.tsv")
	lines := []string{
		"A:1\t99", // The header is never parsed.
		"\t10",
		"A:1\t10",
		"A:1;B:x\tnot-a-number",
		"only-one-column",
		"A:1;junk\t10",
	}
	if err := utils.WriteLines(ctx, lines, filename); err != nil {
		t.Fatal(err)
	}

	got, err := ReadAggregates(ctx, filename)
	if err != nil {
		t.Fatal(err)
	}
	want := reporttypes.CountTable{
		1: {"A:1": 10},
		2: {"A:1": 10},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAggregatesMissingFile(t *testing.T) {
	if _, err := ReadAggregates(context.Background(), "/tmp/no/such/aggregates.tsv"); err == nil {
		t.Fatal("expect error reading a missing file, got nil")
	}
}
