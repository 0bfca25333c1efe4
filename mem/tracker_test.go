package mem

import "testing"

func newTestTracker(t *testing.T, pageCount int) *Tracker {
	t.Helper()
	tr := newTrackerFromSlice(pageCount, make([]uintptr, pageCount))
	return &tr
}

func TestTrackerAllocateEmpty(t *testing.T) {
	tr := newTestTracker(t, 4)
	if _, err := tr.Allocate(); err == nil {
		t.Fatal("expected OutOfMemory on empty tracker")
	}
}

func TestTrackerMarkAndAllocate(t *testing.T) {
	tr := newTestTracker(t, 4)
	tr.MarkAsUnused(0 * PageSize)
	tr.MarkAsUnused(1 * PageSize)
	tr.MarkAsUnused(2 * PageSize)

	if n := tr.FreeCount(); n != 3 {
		t.Fatalf("FreeCount = %d, want 3", n)
	}

	seen := map[uintptr]bool{}
	for i := 0; i < 3; i++ {
		p, err := tr.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if p%PageSize != 0 || p >= 4*PageSize {
			t.Fatalf("allocate %d returned out-of-range page %#x", i, p)
		}
		if seen[p] {
			t.Fatalf("page %#x allocated twice without an intervening mark", p)
		}
		seen[p] = true
	}

	if _, err := tr.Allocate(); err == nil {
		t.Fatal("expected OutOfMemory once the free list is exhausted")
	}
}

func TestTrackerReuseAfterMark(t *testing.T) {
	tr := newTestTracker(t, 2)
	tr.MarkAsUnused(0)
	p, err := tr.Allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	tr.MarkAsUnused(p)
	p2, err := tr.Allocate()
	if err != nil {
		t.Fatalf("allocate after mark: %v", err)
	}
	if p2 != p {
		t.Fatalf("expected freed page %#x to be reused, got %#x", p, p2)
	}
}
