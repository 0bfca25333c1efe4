package mem

import (
	"unsafe"

	"substrate/diagnostics"
	"substrate/epoch"
)

// Tracker allocates and frees physical pages via a free-list kept as a
// flat array of page indices. The array itself lives in memory handed
// out once by a BootAllocator and is never resized.
type Tracker struct {
	pageCount  int
	freePages  []uintptr
	freePagesL int
}

// NewTracker creates a Tracker able to manage up to pageCount pages. The
// free-page index array is carved out of ba; the tracker starts out
// empty — callers must seed it with MarkAsUnused for every page that is
// actually available before the first Allocate.
func NewTracker(pageCount int, ba *BootAllocator) (Tracker, error) {
	phys, err := ba.Allocate(uintptr(pageCount)*unsafe.Sizeof(uintptr(0)), unsafe.Alignof(uintptr(0)))
	if err != nil {
		return Tracker{}, err
	}

	base := (*[MaxPhysicalMemory / PageSize]uintptr)(unsafe.Pointer(phys + HHDMOffset))
	return newTrackerFromSlice(pageCount, base[:pageCount:pageCount]), nil
}

// newTrackerFromSlice builds a Tracker directly on top of a caller-
// supplied backing slice, bypassing the HHDM-relative unsafe allocation
// in NewTracker. Production code never calls this directly; it exists so
// the free-list bookkeeping can be exercised without a live direct map.
func newTrackerFromSlice(pageCount int, freePages []uintptr) Tracker {
	return Tracker{
		pageCount: pageCount,
		freePages: freePages,
	}
}

// MarkAsUnused registers page (a physical address, page-aligned) as
// available for allocation. page must not already be tracked as free and
// must fall within [0, pageCount*PageSize).
func (t *Tracker) MarkAsUnused(page uintptr) {
	if page%PageSize != 0 {
		panic("mem: page is not page-aligned")
	}
	index := page / PageSize
	if int(index) >= t.pageCount {
		panic("mem: page is out of tracked range")
	}

	t.freePages[t.freePagesL] = index
	t.freePagesL++
}

// Allocate removes and returns one page from the free list.
func (t *Tracker) Allocate() (uintptr, error) {
	diagnostics.PageAllocSite(1)

	if t.freePagesL == 0 {
		return 0, OutOfMemory{}
	}
	t.freePagesL--
	return t.freePages[t.freePagesL] * PageSize, nil
}

// FreeCount reports how many pages are presently available.
func (t *Tracker) FreeCount() int {
	return t.freePagesL
}

// LockedTracker guards a Tracker behind an epoch.Mutex.
//
// The epoch discipline lets a read-only observer in user space — who has
// the backing free-page array mapped read-only — snapshot the array
// without ever taking the lock itself, by bracketing its read with two
// epoch samples and retrying unless both are equal and even. Writers
// honor this by mutating the array before releasing the lock (Unlock's
// increment is therefore always the last thing that happens).
type LockedTracker struct {
	epoch   epoch.Mutex
	tracker Tracker
}

// NewLockedTracker wraps tracker behind a fresh, unlocked epoch mutex.
func NewLockedTracker(tracker Tracker) LockedTracker {
	return LockedTracker{tracker: tracker}
}

// Lock acquires the tracker and returns a pointer to it. The caller must
// call Unlock when done.
func (l *LockedTracker) Lock() *Tracker {
	l.epoch.Lock()
	return &l.tracker
}

// Unlock releases the tracker acquired by Lock.
func (l *LockedTracker) Unlock() {
	l.epoch.Unlock()
}

// Epoch returns the tracker's current epoch, for lock-free readers.
func (l *LockedTracker) Epoch() uint64 {
	return l.epoch.Epoch()
}

// Tok is a capability token witnessing that the global memory tracker has
// been initialized. Holding one makes access to Global infallible.
type Tok struct{}

var global LockedTracker

// Init installs tracker as the global memory tracker and returns a Tok
// that can be used to access it thereafter. Must be called exactly once.
func Init(tracker Tracker) Tok {
	global = NewLockedTracker(tracker)
	return Tok{}
}

// Global returns the global memory tracker. Requires a Tok, which can
// only have been produced by Init, so this never panics.
func (Tok) Global() *LockedTracker {
	return &global
}
