package paging

import (
	"testing"
	"unsafe"

	"substrate/mem"
)

// testArena emulates the higher-half direct map for tests: a big chunk
// of ordinary Go memory that page-table pages are carved out of, with a
// bump allocator standing in for the boot allocator.
type testArena struct {
	buf       []byte
	directMap uintptr
	next      uintptr
}

func newTestArena(t *testing.T, pages int) *testArena {
	t.Helper()
	buf := make([]byte, (pages+1)*PageSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	// Round up to a page boundary inside buf so carved-out tables are
	// themselves page aligned, matching what a real BootAllocator gives.
	aligned := (base + PageSize - 1) &^ (PageSize - 1)
	return &testArena{buf: buf, directMap: 0, next: aligned}
}

func (a *testArena) allocPage() (uintptr, error) {
	p := a.next
	a.next += PageSize
	return p, nil
}

func (a *testArena) l4() *Table {
	p, _ := a.allocPage()
	t := (*Table)(unsafe.Pointer(p + a.directMap))
	*t = Table{}
	return t
}

func TestMap4KWalkScenario(t *testing.T) {
	arena := newTestArena(t, 16)
	l4 := arena.l4()

	const virt = uintptr(0xFFFF_FFFF_C000_0000)
	const phys = uintptr(0x200000)
	flags := Writable | Global

	if err := Map4K(l4, arena.directMap, arena.allocPage, virt, phys, flags); err != nil {
		t.Fatalf("Map4K: %v", err)
	}

	l4Idx, l3Idx, l2Idx, l1Idx := split4(virt)
	if l4Idx != 511 || l3Idx != 511 || l2Idx != 0 || l1Idx != 0 {
		t.Fatalf("split4(%#x) = (%d,%d,%d,%d), want (511,511,0,0)", virt, l4Idx, l3Idx, l2Idx, l1Idx)
	}

	gotPhys, gotFlags, ok := Walk4K(l4, arena.directMap, virt)
	if !ok {
		t.Fatal("Walk4K: expected mapping to be present")
	}
	if gotPhys != phys {
		t.Fatalf("Walk4K phys = %#x, want %#x", gotPhys, phys)
	}
	if gotFlags&(Present|Writable|Global) != (Present | Writable | Global) {
		t.Fatalf("Walk4K flags = %#x, want PRESENT|WRITABLE|GLOBAL set", gotFlags)
	}
}

func TestMapRangeGranularityChoice(t *testing.T) {
	arena := newTestArena(t, 8)
	l4 := arena.l4()

	calls := 0
	counting := func() (uintptr, error) {
		calls++
		return arena.allocPage()
	}

	const virt = uintptr(mem.HHDMOffset)
	if err := MapRange(l4, arena.directMap, counting, 0, virt, 2*oneGiB, Writable|Global); err != nil {
		t.Fatalf("MapRange 2GiB: %v", err)
	}

	for i := 0; i < 2; i++ {
		v := virt + uintptr(i)*oneGiB
		l4Idx, l3Idx, _, _ := split4(v)
		l3 := tryDirectoryEntryMut(l4, arena.directMap, l4Idx)
		if l3 == nil {
			t.Fatalf("gib %d: l3 directory missing", i)
		}
		entry := l3.entries[l3Idx]
		if entry&uint64(Present|Huge) != uint64(Present|Huge) {
			t.Fatalf("gib %d: entry %#x missing PRESENT|HUGE", i, entry)
		}
	}
}

func TestMapRangeSmallSizeGranularity(t *testing.T) {
	arena := newTestArena(t, 512)
	l4 := arena.l4()

	const virt = uintptr(0x4000_0000) // 1 GiB aligned, well below huge-page thresholds' overlap
	if err := MapRange(l4, arena.directMap, arena.allocPage, 0, virt, 3*1024*1024, Writable); err != nil {
		t.Fatalf("MapRange 3MiB: %v", err)
	}

	// One 2 MiB mapping at the start.
	if _, _, ok := walk2M(l4, arena.directMap, virt); !ok {
		t.Fatal("expected a 2 MiB mapping at the start of the range")
	}

	// Followed by 256 4 KiB mappings covering the remaining 1 MiB
	// (2 MiB + 256*4 KiB == 2 MiB + 1 MiB == 3 MiB).
	for i := 0; i < 256; i++ {
		v := virt + twoMiB + uintptr(i)*fourKiB
		if _, _, ok := Walk4K(l4, arena.directMap, v); !ok {
			t.Fatalf("expected a 4 KiB mapping at %#x (i=%d)", v, i)
		}
	}
}

// walk2M is a small test helper mirroring Walk4K but for 2 MiB leaves.
func walk2M(l4 *Table, directMap uintptr, virt uintptr) (uintptr, Flags, bool) {
	l4Idx, l3Idx, l2Idx, _ := split4(virt)
	l3 := tryDirectoryEntryMut(l4, directMap, l4Idx)
	if l3 == nil {
		return 0, 0, false
	}
	l2 := tryDirectoryEntryMut(l3, directMap, l3Idx)
	if l2 == nil {
		return 0, 0, false
	}
	entry := l2.entries[l2Idx]
	if entry&uint64(Present|Huge) != uint64(Present|Huge) {
		return 0, 0, false
	}
	return uintptr(entry & addrMask), Flags(entry &^ addrMask), true
}

func TestUnmap4KRoundTrip(t *testing.T) {
	arena := newTestArena(t, 16)
	l4 := arena.l4()

	const virt = uintptr(0x1000)
	if err := Map4K(l4, arena.directMap, arena.allocPage, virt, 0x300000, Writable); err != nil {
		t.Fatalf("Map4K: %v", err)
	}
	if err := Unmap4K(l4, arena.directMap, virt); err != nil {
		t.Fatalf("Unmap4K: %v", err)
	}
	if _, _, ok := Walk4K(l4, arena.directMap, virt); ok {
		t.Fatal("expected mapping to be gone after Unmap4K")
	}
	if err := Unmap4K(l4, arena.directMap, virt); err == nil {
		t.Fatal("expected Unmap4K of an already-unmapped page to fail")
	}
}

func TestFuseFlagsIdempotent(t *testing.T) {
	cases := []uint64{
		uint64(Present | Writable),
		uint64(Present | Writable | Global | NoExecute),
		uint64(Present | User | DisableCache),
	}
	for _, a := range cases {
		for _, b := range cases {
			got := fuseFlags(a, b)
			want := fuseFlags(a, fuseFlags(b, b))
			if got != want {
				t.Fatalf("fuseFlags(%#x, %#x) = %#x, want %#x (idempotence law)", a, b, got, want)
			}
		}
	}
}
