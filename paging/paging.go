// Package paging implements the four-level x86_64 page-table walker:
// mapping and unmapping 4 KiB, 2 MiB and 1 GiB pages, and a size-adaptive
// range mapper that picks the largest granularity it can at each step.
package paging

import (
	"unsafe"

	"substrate/mem"
)

const (
	oneGiB = 1024 * 1024 * 1024
	twoMiB = 1024 * 1024 * 2
	fourKiB = 1024 * 4
)

// Flags are the bits that may be set on a page-table entry. They mirror
// the hardware layout directly so they can be OR'd straight into an
// entry's low bits.
type Flags uint64

const (
	Present      Flags = 1 << 0
	Writable     Flags = 1 << 1
	User         Flags = 1 << 2
	WriteThrough Flags = 1 << 3
	DisableCache Flags = 1 << 4
	Accessed     Flags = 1 << 5
	Dirty        Flags = 1 << 6
	Huge         Flags = 1 << 7
	Global       Flags = 1 << 8
	NoExecute    Flags = 1 << 63
)

// orFlags are fused by taking the union of a and b: once a flag is set
// by either caller, it stays set.
const orFlags = Dirty | Present | Writable | User

// andFlags are fused by intersection: a directory shared by two mappings
// keeps one of these flags only if both mappings asked for it (e.g. two
// callers must both tolerate no-execute before the shared directory can
// enforce it).
const andFlags = DisableCache | Global | NoExecute | WriteThrough

// preservedBits are never touched by fuseFlags: everything outside the
// flag bits, plus ACCESSED (which the CPU itself maintains).
const preservedBits = 0x3FF0_FFFF_FFFF_FE00 | uint64(Accessed)

// fuseFlags combines the flags of an existing directory entry a with the
// flags requested by a new mapping b, preserving a's address bits and
// ACCESSED, OR-ing the permissive flags, and AND-ing the restrictive
// ones. Idempotent: fuseFlags(a, b) == fuseFlags(a, fuseFlags(b, b)).
func fuseFlags(a, b uint64) uint64 {
	aAnd := a & uint64(andFlags)
	bAnd := b & uint64(andFlags)
	aOr := a & uint64(orFlags)
	bOr := b & uint64(orFlags)
	aKept := a & preservedBits

	return aKept | aOr | bOr | (aAnd & bAnd)
}

// addrMask extracts the physical address bits of a page-table entry.
const addrMask = 0x0FFF_FFFF_FFFF_F000

// Table is one level of the page-table hierarchy: 512 eight-byte entries
// occupying exactly one physical page. It is never constructed directly;
// instances are always an overlay onto a page handed out by AllocPage.
type Table struct {
	entries [512]uint64
}

// AllocPage allocates one physical page and returns its address, or
// reports that memory is exhausted.
type AllocPage func() (uintptr, error)

func tableAt(directMap, phys uintptr) *Table {
	return (*Table)(unsafe.Pointer(phys + directMap))
}

// directoryEntryMut returns the next-level table referenced by the entry
// at index, allocating and zeroing a fresh page for it if the entry is
// not yet present. If the entry is already present, its flags are fused
// with parentFlags so that a directory shared between two mappings ends
// up with the correctly combined permissions.
func directoryEntryMut(t *Table, directMap uintptr, allocPage AllocPage, index int, parentFlags Flags) (*Table, error) {
	entry := &t.entries[index]

	var page uintptr
	if *entry == 0 {
		p, err := allocPage()
		if err != nil {
			return nil, err
		}
		page = p

		zeroed := tableAt(directMap, page)
		*zeroed = Table{}

		*entry = uint64(page) | uint64(Present|parentFlags)
	} else {
		*entry = fuseFlags(*entry, uint64(parentFlags))
		page = uintptr(*entry & addrMask)
	}

	return tableAt(directMap, page), nil
}

// tryDirectoryEntryMut returns the next-level table referenced by the
// entry at index, or nil if the entry is absent or refers to a huge
// (leaf) mapping rather than a directory.
func tryDirectoryEntryMut(t *Table, directMap uintptr, index int) *Table {
	entry := t.entries[index]

	if entry&uint64(Present) == 0 {
		return nil
	}
	if entry&uint64(Huge) != 0 {
		return nil
	}

	return tableAt(directMap, uintptr(entry&addrMask))
}

func split4(virt uintptr) (l4, l3, l2, l1 int) {
	return int((virt >> 39) & 0o777),
		int((virt >> 30) & 0o777),
		int((virt >> 21) & 0o777),
		int((virt >> 12) & 0o777)
}

// Map4K maps a single 4 KiB page. phys and virt must already be aligned
// to 4 KiB.
func Map4K(l4 *Table, directMap uintptr, allocPage AllocPage, virt, phys uintptr, flags Flags) error {
	l4Idx, l3Idx, l2Idx, l1Idx := split4(virt)

	l3, err := directoryEntryMut(l4, directMap, allocPage, l4Idx, flags)
	if err != nil {
		return err
	}
	l2, err := directoryEntryMut(l3, directMap, allocPage, l3Idx, flags)
	if err != nil {
		return err
	}
	l1, err := directoryEntryMut(l2, directMap, allocPage, l2Idx, flags)
	if err != nil {
		return err
	}

	l1.entries[l1Idx] = uint64(phys) | uint64(Present|flags)
	return nil
}

// Map2M maps a single 2 MiB huge page. phys and virt must already be
// aligned to 2 MiB.
func Map2M(l4 *Table, directMap uintptr, allocPage AllocPage, virt, phys uintptr, flags Flags) error {
	l4Idx, l3Idx, l2Idx, _ := split4(virt)

	l3, err := directoryEntryMut(l4, directMap, allocPage, l4Idx, flags)
	if err != nil {
		return err
	}
	l2, err := directoryEntryMut(l3, directMap, allocPage, l3Idx, flags)
	if err != nil {
		return err
	}

	l2.entries[l2Idx] = uint64(phys) | uint64(Present|Huge|flags)
	return nil
}

// Map1G maps a single 1 GiB huge page. phys and virt must already be
// aligned to 1 GiB.
func Map1G(l4 *Table, directMap uintptr, allocPage AllocPage, virt, phys uintptr, flags Flags) error {
	l4Idx, l3Idx, _, _ := split4(virt)

	l3, err := directoryEntryMut(l4, directMap, allocPage, l4Idx, flags)
	if err != nil {
		return err
	}

	l3.entries[l3Idx] = uint64(phys) | uint64(Present|Huge|flags)
	return nil
}

// errNotMapped is returned by Unmap4K when virt has no mapping.
type errNotMapped struct{}

func (errNotMapped) Error() string { return "paging: address is not mapped" }

// IsNotMapped reports whether err is the "no mapping existed" error
// returned by Unmap4K, as opposed to an allocation failure.
func IsNotMapped(err error) bool {
	_, ok := err.(errNotMapped)
	return ok
}

// Unmap4K removes the 4 KiB mapping at virt. It reports errNotMapped (via
// the returned error) if no mapping existed, without altering anything.
func Unmap4K(l4 *Table, directMap uintptr, virt uintptr) error {
	l4Idx, l3Idx, l2Idx, l1Idx := split4(virt)

	l3 := tryDirectoryEntryMut(l4, directMap, l4Idx)
	if l3 == nil {
		return errNotMapped{}
	}
	l2 := tryDirectoryEntryMut(l3, directMap, l3Idx)
	if l2 == nil {
		return errNotMapped{}
	}
	l1 := tryDirectoryEntryMut(l2, directMap, l2Idx)
	if l1 == nil {
		return errNotMapped{}
	}

	entry := &l1.entries[l1Idx]
	if *entry&uint64(Present) == 0 {
		return errNotMapped{}
	}
	*entry = 0
	return nil
}

// MapRange maps size bytes of physical memory starting at phys into the
// range starting at virt, choosing the largest granularity (1 GiB, then
// 2 MiB, then 4 KiB) available at each step given the remaining size and
// alignment. phys and virt must be 4 KiB aligned; size need not be.
//
// This produces exactly the same (virt -> phys) relation as size/4096
// individual Map4K calls with the same flags, regardless of which
// granularities it actually chose.
func MapRange(l4 *Table, directMap uintptr, allocPage AllocPage, phys, virt uintptr, size uintptr, flags Flags) error {
	if size == 0 {
		return nil
	}

	for {
		switch {
		case size >= oneGiB && phys%oneGiB == 0 && virt%oneGiB == 0:
			if err := Map1G(l4, directMap, allocPage, virt, phys, flags); err != nil {
				return err
			}
			size -= oneGiB
			virt += oneGiB
			phys += oneGiB

		case size >= twoMiB && phys%twoMiB == 0 && virt%twoMiB == 0:
			if err := Map2M(l4, directMap, allocPage, virt, phys, flags); err != nil {
				return err
			}
			size -= twoMiB
			virt += twoMiB
			phys += twoMiB

		default:
			if err := Map4K(l4, directMap, allocPage, virt, phys, flags); err != nil {
				return err
			}
			if size <= fourKiB {
				return nil
			}
			size -= fourKiB
			virt += fourKiB
			phys += fourKiB
		}

		if size == 0 {
			return nil
		}
	}
}

// Walk4K returns the physical address and flags currently mapped at
// virt, or ok==false if there is no 4 KiB leaf mapping there. It is used
// by tests and diagnostics to verify a mapping without unmapping it.
func Walk4K(l4 *Table, directMap uintptr, virt uintptr) (phys uintptr, flags Flags, ok bool) {
	l4Idx, l3Idx, l2Idx, l1Idx := split4(virt)

	l3 := tryDirectoryEntryMut(l4, directMap, l4Idx)
	if l3 == nil {
		return 0, 0, false
	}
	l2 := tryDirectoryEntryMut(l3, directMap, l3Idx)
	if l2 == nil {
		return 0, 0, false
	}
	l1 := tryDirectoryEntryMut(l2, directMap, l2Idx)
	if l1 == nil {
		return 0, 0, false
	}

	entry := l1.entries[l1Idx]
	if entry&uint64(Present) == 0 {
		return 0, 0, false
	}
	return uintptr(entry & addrMask), Flags(entry &^ addrMask), true
}

// PageSize re-exports mem.PageSize for callers that only import paging.
const PageSize = mem.PageSize
