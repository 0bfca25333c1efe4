// Package kspace builds the kernel's own top-level page table: a direct
// map of all physical memory, the kernel image itself, and the public
// shared-data region (mapped writable and user-accessible), laid out once at boot and shared by every
// process thereafter.
package kspace

import (
	"unsafe"

	"substrate/mem"
	"substrate/paging"
)

const oneGiB = 1024 * 1024 * 1024

// Image describes where the kernel's own code and data live, physically
// and virtually, so the address-space builder can map itself in.
type Image struct {
	// PhysStart and VirtStart bound the kernel image; VirtStart is
	// normally a fixed link-time address in the higher half.
	PhysStart, VirtStart uintptr
	Size                 uintptr
}

// PublicData describes where the public shared-data region (see package
// public) lives physically and where it should appear virtually.
type PublicData struct {
	Phys, Virt uintptr
	Size       uintptr
}

// errOverlap is returned when the kernel image would overlap the direct
// map, which create_kernel_address_space in the original design treats
// as a debug-only assertion; here it is a hard error since overlap is
// always a configuration bug, not an expected runtime condition.
type errOverlap struct{}

func (errOverlap) Error() string { return "kspace: kernel image overlaps the direct map" }

// Build constructs the kernel's L4 page table: a direct map of
// directMapSize bytes of physical memory at mem.HHDMOffset, the kernel
// image itself, and the public data region. It returns the physical
// address of the new L4 table.
//
// directMapSize is raised to at least 4 GiB, since some I/O devices are
// mapped past the end of installed RAM.
func Build(ba *mem.BootAllocator, directMapSize uintptr, image Image, pub PublicData) (uintptr, error) {
	if directMapSize < 4*oneGiB {
		directMapSize = 4 * oneGiB
	}
	if image.VirtStart < mem.HHDMOffset+directMapSize {
		return 0, errOverlap{}
	}

	l4Phys, err := ba.Allocate(mem.PageSize, mem.PageSize)
	if err != nil {
		return 0, err
	}

	l4 := (*paging.Table)(unsafe.Pointer(l4Phys + mem.HHDMOffset))
	*l4 = paging.Table{}

	allocPage := func() (uintptr, error) {
		return ba.Allocate(mem.PageSize, mem.PageSize)
	}

	if err := paging.MapRange(l4, mem.HHDMOffset, allocPage,
		0, mem.HHDMOffset, directMapSize,
		paging.Writable|paging.Global); err != nil {
		return 0, err
	}

	if err := paging.MapRange(l4, mem.HHDMOffset, allocPage,
		image.PhysStart, image.VirtStart, image.Size,
		paging.Writable|paging.Global); err != nil {
		return 0, err
	}

	if err := paging.MapRange(l4, mem.HHDMOffset, allocPage,
		pub.Phys, pub.Virt, pub.Size,
		paging.Writable|paging.Global|paging.User); err != nil {
		return 0, err
	}

	return l4Phys, nil
}

// Tok is a capability token proving the kernel's L4 address space has
// been built and installed.
type Tok struct{}

var l4Table uintptr

// Init records l4 as the kernel's address space and returns a Tok.
// Must be called exactly once, after Build succeeds.
func Init(l4 uintptr) Tok {
	l4Table = l4
	return Tok{}
}

// L4 returns the physical address of the kernel's L4 page table.
func (Tok) L4() uintptr {
	return l4Table
}
