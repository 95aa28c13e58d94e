package overlap

import (
	"testing"
	"time"
)

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad time %q: %v", hhmm, err)
	}
	return parsed
}

func TestDetect_OverlapIsSymmetric(t *testing.T) {
	got := Detect([]Interval{
		{ID: "a", Start: at(t, "10:00"), End: at(t, "11:00")},
		{ID: "b", Start: at(t, "10:30"), End: at(t, "11:30")},
	})
	if len(got["a"]) != 1 || got["a"][0] != "b" {
		t.Fatalf("a conflicts = %v, want [b]", got["a"])
	}
	if len(got["b"]) != 1 || got["b"][0] != "a" {
		t.Fatalf("b conflicts = %v, want [a]", got["b"])
	}
}

func TestDetect_BackToBackDoesNotConflict(t *testing.T) {
	got := Detect([]Interval{
		{ID: "a", Start: at(t, "10:00"), End: at(t, "11:00")},
		{ID: "b", Start: at(t, "11:00"), End: at(t, "12:00")},
	})
	if len(got["a"]) != 0 {
		t.Fatalf("a conflicts = %v, want none", got["a"])
	}
	if len(got["b"]) != 0 {
		t.Fatalf("b conflicts = %v, want none", got["b"])
	}
}

func TestDetect_ZeroDurationNeverConflicts(t *testing.T) {
	got := Detect([]Interval{
		{ID: "a", Start: at(t, "10:00"), End: at(t, "11:00")},
		{ID: "zero", Start: at(t, "10:30"), End: at(t, "10:30")},
	})
	if len(got["zero"]) != 0 {
		t.Fatalf("zero conflicts = %v, want none", got["zero"])
	}
	if len(got["a"]) != 0 {
		t.Fatalf("a conflicts = %v, want none", got["a"])
	}
}

func TestDetect_ChainOverlap(t *testing.T) {
	got := Detect([]Interval{
		{ID: "a", Start: at(t, "09:00"), End: at(t, "10:30")},
		{ID: "b", Start: at(t, "10:00"), End: at(t, "12:00")},
		{ID: "c", Start: at(t, "11:00"), End: at(t, "11:30")},
		{ID: "d", Start: at(t, "13:00"), End: at(t, "14:00")},
	})
	wantPairs := map[string][]string{
		"a": {"b"},
		"b": {"a", "c"},
		"c": {"b"},
		"d": {},
	}
	for id, want := range wantPairs {
		if len(got[id]) != len(want) {
			t.Fatalf("%s conflicts = %v, want %v", id, got[id], want)
		}
		for i, w := range want {
			if got[id][i] != w {
				t.Fatalf("%s conflicts = %v, want %v", id, got[id], want)
			}
		}
	}
}

func TestDetect_IndependentOfInputOrder(t *testing.T) {
	intervals := []Interval{
		{ID: "a", Start: at(t, "09:00"), End: at(t, "10:30")},
		{ID: "b", Start: at(t, "10:00"), End: at(t, "12:00")},
		{ID: "c", Start: at(t, "11:00"), End: at(t, "11:30")},
	}
	reversed := []Interval{intervals[2], intervals[1], intervals[0]}

	first := Detect(intervals)
	second := Detect(reversed)
	for id := range first {
		if len(first[id]) != len(second[id]) {
			t.Fatalf("order-dependent result for %s: %v vs %v", id, first[id], second[id])
		}
		for i := range first[id] {
			if first[id][i] != second[id][i] {
				t.Fatalf("order-dependent result for %s: %v vs %v", id, first[id], second[id])
			}
		}
	}
}

func TestDetect_IdenticalTimesConflict(t *testing.T) {
	got := Detect([]Interval{
		{ID: "a", Start: at(t, "10:00"), End: at(t, "11:00")},
		{ID: "b", Start: at(t, "10:00"), End: at(t, "11:00")},
	})
	if len(got["a"]) != 1 || got["a"][0] != "b" {
		t.Fatalf("a conflicts = %v, want [b]", got["a"])
	}
}
