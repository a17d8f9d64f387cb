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

package reporttypes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSortPairs(t *testing.T) {
	got := []Pair{
		{Attribute: "b", Value: "1"},
		{Attribute: "A", Value: "2"},
		{Attribute: "a", Value: "10"},
		{Attribute: "a", Value: "2"},
	}
	if IsCanonical(got) {
		t.Error("expect unsorted pairs to be non-canonical")
	}
	SortPairs(got)
	want := []Pair{
		{Attribute: "a", Value: "10"},
		{Attribute: "A", Value: "2"},
		{Attribute: "a", Value: "2"},
		{Attribute: "b", Value: "1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sorted pairs mismatch (-want +got):\n%s", diff)
	}
	if !IsCanonical(got) {
		t.Error("expect sorted pairs to be canonical")
	}
}

func TestSortPairsIndependentOfInputOrder(t *testing.T) {
	a := []Pair{{"A", "x"}, {"a", "x"}, {"B", "y"}}
	b := []Pair{{"B", "y"}, {"a", "x"}, {"A", "x"}}
	SortPairs(a)
	SortPairs(b)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("order depends on input (-a +b):\n%s", diff)
	}
}

func TestCountTableEntries(t *testing.T) {
	table := make(CountTable)
	table.Add(2, "A:1;B:x", 2)
	table.Add(1, "B:y", 1)
	table.Add(1, "A:1", 3)
	table.Add(1, "B:x", 2)
	table.Add(1, "B:x", 1)

	if diff := cmp.Diff([]int{1, 2}, table.Lengths()); diff != "" {
		t.Errorf("lengths mismatch (-want +got):\n%s", diff)
	}
	want := []Entry{
		{Length: 1, Combo: "A:1", Count: 3},
		{Length: 1, Combo: "B:x", Count: 3},
		{Length: 1, Combo: "B:y", Count: 1},
		{Length: 2, Combo: "A:1;B:x", Count: 2},
	}
	if diff := cmp.Diff(want, table.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}
