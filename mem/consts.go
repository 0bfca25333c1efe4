// Package mem provides the kernel's boot-time physical memory primitives:
// a bump allocator for structures that live for the kernel's entire
// lifetime, and a free-list tracker for pages handed out after boot.
package mem

import "unsafe"

// PageSize is the size of a physical page, in bytes.
const PageSize = 4096

// MaxPhysicalMemory bounds the amount of physical memory the tracker is
// prepared to manage. Arbitrarily set to 1 TiB.
const MaxPhysicalMemory = 1024 * 1024 * 1024 * 1024

// HHDMOffset is the offset between a physical address and its mapping in
// the kernel's higher-half direct map.
const HHDMOffset = 0xFFFF_8000_0000_0000

// UserTop is the last address that is part of a userland process's
// address space.
const UserTop = 0x0000_7FFF_FFFF_FFFF

// Pa is a physical address.
type Pa uintptr

// OutOfMemory indicates that an allocator could not satisfy a request.
type OutOfMemory struct{}

func (OutOfMemory) Error() string { return "out of memory" }

// HHDMPointer returns the direct-map virtual address of physical address
// phys, as an unsafe.Pointer ready to be cast to the caller's desired
// pointer type.
func HHDMPointer(phys uintptr) unsafe.Pointer {
	return unsafe.Pointer(phys + HHDMOffset)
}
