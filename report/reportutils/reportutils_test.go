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

package reportutils

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

func TestNormalizeRowSensitiveZeros(t *testing.T) {
	columns := []string{"A", "B"}
	row := []string{"1", "0"}

	got := NormalizeRow(row, columns, SensitiveZeroSet(nil))
	want := reporttypes.Record{{Attribute: "A", Value: "1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch without sensitive zeros (-want +got):\n%s", diff)
	}

	got = NormalizeRow(row, columns, SensitiveZeroSet([]string{"B"}))
	want = reporttypes.Record{{Attribute: "A", Value: "1"}, {Attribute: "B", Value: "0"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch with sensitive zeros (-want +got):\n%s", diff)
	}
}

func TestNormalizeRowColumnOrder(t *testing.T) {
	zeros := SensitiveZeroSet(nil)
	got1 := NormalizeRow([]string{"x", "2", "", "y"}, []string{"b", "A", "c", "D"}, zeros)
	got2 := NormalizeRow([]string{"y", "", "x", "2"}, []string{"D", "c", "b", "A"}, zeros)

	want := reporttypes.Record{
		{Attribute: "A", Value: "2"},
		{Attribute: "b", Value: "x"},
		{Attribute: "D", Value: "y"},
	}
	if diff := cmp.Diff(want, got1); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got1, got2); diff != "" {
		t.Errorf("records depend on the column order (-first +second):\n%s", diff)
	}
}

func TestNormalizeEmptyRow(t *testing.T) {
	got := NormalizeRow([]string{"", "0"}, []string{"A", "B"}, SensitiveZeroSet(nil))
	if len(got) != 0 {
		t.Errorf("expect empty record, got %v", got)
	}
}

func TestCleanValue(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{in: "nan", want: ""},
		{in: "12.0", want: "12"},
		{in: "12.05", want: "12.05"},
		{in: "a;b", want: "a.,b"},
		{in: "10:30", want: "10..30"},
		{in: "plain", want: "plain"},
	} {
		if got := CleanValue(tc.in); got != tc.want {
			t.Errorf("CleanValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseMicrodata(t *testing.T) {
	content := []byte("A,B,C\n1,x,nan\n2.0,y;z,0\n3,w,5\n")

	got, err := ParseMicrodata(content, ",", -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &Microdata{
		Columns: []string{"A", "B", "C"},
		Rows: [][]string{
			{"1", "x", ""},
			{"2", "y.,z", "0"},
			{"3", "w", "5"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("microdata mismatch (-want +got):\n%s", diff)
	}

	got, err = ParseMicrodata(content, ",", 2, []string{"C", "A"})
	if err != nil {
		t.Fatal(err)
	}
	want = &Microdata{
		Columns: []string{"C", "A"},
		Rows: [][]string{
			{"", "1"},
			{"0", "2"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("microdata mismatch with limits (-want +got):\n%s", diff)
	}

	if _, err := ParseMicrodata(content, ",", -1, []string{"Z"}); err == nil {
		t.Error("expect error for unknown column")
	}
	if _, err := ParseMicrodata(content, ",;", -1, nil); err == nil {
		t.Error("expect error for multi-character delimiter")
	}
}

func TestReadMicrodataAndGenRecords(t *testing.T) {
	fileDir, err := ioutil.TempDir("/tmp", "test-microdata")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(fileDir)

	ctx := context.Background()
	filename := path.Join(fileDir, "microdata.tsv")
	if err := utils.WriteLines(ctx, []string{"A\tB", "1\tx", "1\t0", "\t"}, filename); err != nil {
		t.Fatal(err)
	}

	data, err := ReadMicrodata(ctx, filename, "\t", -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := GenRecords(data, []string{"B"})
	want := []reporttypes.Record{
		{{Attribute: "A", Value: "1"}, {Attribute: "B", Value: "x"}},
		{{Attribute: "A", Value: "1"}, {Attribute: "B", Value: "0"}},
		{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if got, want := MaxRecordLength(got), 2; got != want {
		t.Errorf("want max record length %d, got %d", want, got)
	}

	if _, err := ReadMicrodata(ctx, path.Join(fileDir, "missing.tsv"), "\t", -1, nil); err == nil {
		t.Error("expect error reading a missing file")
	}
}
