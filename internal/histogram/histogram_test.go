package histogram

import "testing"

func TestCountsAddGet(t *testing.T) {
	c := NewCounts[int]()
	c.Add(5)
	c.Add(5)
	c.Add(7)

	if got := c.Get(5); got != 2 {
		t.Errorf("Get(5) = %d, want 2", got)
	}
	if got := c.Get(7); got != 1 {
		t.Errorf("Get(7) = %d, want 1", got)
	}
	if got := c.Get(99); got != 0 {
		t.Errorf("Get(99) = %d, want 0", got)
	}
}

func TestCountsMergeCommutativeAndAssociative(t *testing.T) {
	a := NewCounts[string]()
	a.Add("x")
	a.Add("y")

	b := NewCounts[string]()
	b.Add("y")
	b.Add("z")
	b.Add("z")

	ab := NewCounts[string]()
	ab.Merge(a)
	ab.Merge(b)

	ba := NewCounts[string]()
	ba.Merge(b)
	ba.Merge(a)

	for _, key := range []string{"x", "y", "z"} {
		if ab.Get(key) != ba.Get(key) {
			t.Errorf("merge not commutative for %q: %d != %d", key, ab.Get(key), ba.Get(key))
		}
	}

	if ab.Get("x") != 1 || ab.Get("y") != 2 || ab.Get("z") != 2 {
		t.Errorf("unexpected merged totals: x=%d y=%d z=%d", ab.Get("x"), ab.Get("y"), ab.Get("z"))
	}
}

func TestTruncateAbortMessage(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"short", "short"},
		{"exactly twenty chars", "exactly twenty chars"},
		{"item_not_found_in_stock", "item_not_found_in_st" + "…"},
	}
	for _, c := range cases {
		if got := TruncateAbortMessage(c.in); got != c.want {
			t.Errorf("TruncateAbortMessage(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAbortMessageHistogramsRecordAndMerge(t *testing.T) {
	a := NewAbortMessageHistograms()
	a.Record(3, "item_not_found_in_stock")
	a.Record(3, "item_not_found_in_stock")
	a.Record(4, "other")

	if got := a.Get(3, "item_not_found_in_stock"); got != 2 {
		t.Errorf("Get(3, ...) = %d, want 2", got)
	}

	b := NewAbortMessageHistograms()
	b.Record(3, "item_not_found_in_stock")

	a.Merge(b)
	if got := a.Get(3, "item_not_found_in_stock"); got != 3 {
		t.Errorf("after merge Get(3, ...) = %d, want 3", got)
	}
}

func TestRecorderAppendAndIterate(t *testing.T) {
	r := NewRecorder(0)
	r.Append(1, 100, 200, 0, 5)
	r.Append(2, 150, 250, 1, 5)

	if got := r.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}

	first := r.Iterate()
	second := r.Iterate()
	if len(first) != len(second) {
		t.Fatalf("Iterate not idempotent in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Iterate not replayable at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}

	first[0].TypeID = 999
	if r.Iterate()[0].TypeID == 999 {
		t.Error("mutating Iterate() result leaked into Recorder state")
	}
}
