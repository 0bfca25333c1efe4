package bootinfo

import "testing"

func TestMergeSegmentsAdjacentAndOverlapping(t *testing.T) {
	regions := []RawMemoryRegion{
		{Base: 0x1000, Length: 0x1000, Type: Usable},
		{Base: 0x2000, Length: 0x1000, Type: BootloaderReclaimable},
		{Base: 0x10000, Length: 0x500, Type: Usable},
		{Base: 0x10400, Length: 0x1000, Type: ACPIReclaimable}, // overlaps previous
		{Base: 0x50000, Length: 0x1000, Type: Reserved},        // not mergeable
	}

	segs, overflow := MergeSegments(regions)
	if overflow != 0 {
		t.Fatalf("unexpected overflow %d", overflow)
	}
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2", len(segs))
	}

	if segs[0].Base != 0x1000 || segs[0].Length != 0x2000 {
		t.Fatalf("segment 0 = %+v, want base 0x1000 length 0x2000", segs[0])
	}
	if segs[0].UsableOnly {
		t.Fatal("segment 0 merges a Usable region with a BootloaderReclaimable one, so it must not be usable-only")
	}
}

func TestMergeSegmentsCapsAt16(t *testing.T) {
	var regions []RawMemoryRegion
	for i := 0; i < 20; i++ {
		base := uintptr(i) * 0x100000
		regions = append(regions, RawMemoryRegion{Base: base, Length: 0x1000, Type: Usable})
		// Leave a gap so each one stays a distinct segment.
	}

	segs, overflow := MergeSegments(regions)
	if len(segs) != MaxSegments {
		t.Fatalf("len(segs) = %d, want %d", len(segs), MaxSegments)
	}
	if overflow != 4 {
		t.Fatalf("overflow = %d, want 4", overflow)
	}
}

func TestMergeSegmentsPageAlignment(t *testing.T) {
	regions := []RawMemoryRegion{
		{Base: 0x123, Length: 0x2000, Type: Usable},
	}
	segs, _ := MergeSegments(regions)
	if len(segs) != 1 {
		t.Fatalf("len(segs) = %d, want 1", len(segs))
	}
	if segs[0].Base != 0x1000 {
		t.Fatalf("base = %#x, want rounded-up 0x1000", segs[0].Base)
	}
	if segs[0].Length != 0x1000 {
		t.Fatalf("length = %#x, want rounded-down 0x1000", segs[0].Length)
	}
}

func TestLargestUsable(t *testing.T) {
	segs := []Segment{
		{Base: 0x1000, Length: 0x1000, UsableOnly: true},
		{Base: 0x100000, Length: 0x2000, UsableOnly: false},
		{Base: 0x200000, Length: 0x5000, UsableOnly: true},
	}
	best, ok := LargestUsable(segs)
	if !ok {
		t.Fatal("expected a usable segment")
	}
	if best.Base != 0x200000 {
		t.Fatalf("best.Base = %#x, want 0x200000", best.Base)
	}
}

func TestLargestUsableNoneFound(t *testing.T) {
	segs := []Segment{{Base: 0x1000, Length: 0x1000, UsableOnly: false}}
	if _, ok := LargestUsable(segs); ok {
		t.Fatal("expected ok=false when no segment is usable-only")
	}
}

func TestFindModule(t *testing.T) {
	mods := []RawModule{
		{Name: "ramfs", PhysAddr: 0x1000, Size: 10},
		{Name: InitModuleName, PhysAddr: 0x2000, Size: 20},
	}
	got, ok := FindModule(mods, InitModuleName)
	if !ok || got.PhysAddr != 0x2000 {
		t.Fatalf("FindModule(%q) = %+v, %v", InitModuleName, got, ok)
	}
	if _, ok := FindModule(mods, "missing"); ok {
		t.Fatal("expected ok=false for a module that isn't present")
	}
}
