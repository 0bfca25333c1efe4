// Package bootinfo abstracts the handful of facts a bootloader must
// supply before the kernel can initialize itself: the higher-half direct
// map offset, a typed physical memory map, zero or more framebuffers, the
// kernel's own physical/virtual base, and a list of named boot modules.
//
// Nothing in this package parses a wire format; that is the job of
// whatever bootloader-specific glue constructs an Info value.
package bootinfo

import (
	"sort"

	"substrate/util"
)

// RegionType classifies one entry of the bootloader-supplied memory map.
type RegionType int

const (
	Usable RegionType = iota
	Reserved
	ACPIReclaimable
	ACPINVS
	BadMemory
	BootloaderReclaimable
	KernelAndModules
	Framebuffer
)

// RawMemoryRegion is one entry of the raw, unmerged bootloader memory
// map.
type RawMemoryRegion struct {
	Base, Length uintptr
	Type         RegionType
}

// RawFramebuffer describes one framebuffer reported by the bootloader.
type RawFramebuffer struct {
	PhysAddr           uintptr
	Width, Height      uint32
	Pitch              uint32
	RedMask, BlueMask  uint32
	GreenMask          uint32
	BitsPerPixel       uint16
}

// RawModule is one boot module (a file the bootloader loaded alongside
// the kernel), identified by name.
type RawModule struct {
	Name     string
	PhysAddr uintptr
	Size     uintptr
}

// Info is the complete set of boot-time facts required by the kernel.
type Info struct {
	HHDMOffset      uintptr
	Regions         []RawMemoryRegion
	Framebuffers    []RawFramebuffer
	KernelPhysBase  uintptr
	KernelVirtBase  uintptr
	KernelImageSize uintptr
	Modules         []RawModule
}

// MaxSegments bounds how many merged segments MergeSegments will return.
// Additional mergeable regions beyond this count are dropped; the caller
// is expected to log a warning when that happens.
const MaxSegments = 16

// Segment is one merged, page-aligned, contiguous range of memory that
// is safe for the kernel to hand out (it was USABLE, or reclaimable from
// the bootloader or ACPI tables).
type Segment struct {
	Base, Length uintptr
	// UsableOnly is true only if every raw region folded into this
	// segment was RegionType Usable — such a segment is eligible to
	// back the boot bump allocator, since reclaimable regions may still
	// be holding bootloader structures the kernel hasn't read yet.
	UsableOnly bool
}

const pageSize = 4096

func mergeable(t RegionType) bool {
	return t == Usable || t == BootloaderReclaimable || t == ACPIReclaimable
}

// MergeSegments merges adjacent or overlapping mergeable regions
// (USABLE, BOOTLOADER_RECLAIMABLE, ACPI_RECLAIMABLE) of the raw memory
// map into page-aligned segments, rounding each segment's base up and
// its length down so it never claims a partial page. The result is
// capped at MaxSegments entries; overflow is reported via the second
// return value so the caller can log it.
func MergeSegments(regions []RawMemoryRegion) ([]Segment, int) {
	var raw []RawMemoryRegion
	for _, r := range regions {
		if mergeable(r.Type) && r.Length > 0 {
			raw = append(raw, r)
		}
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].Base < raw[j].Base })

	var merged []Segment
	for _, r := range raw {
		usableOnly := r.Type == Usable
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if r.Base <= last.Base+last.Length {
				end := r.Base + r.Length
				if end > last.Base+last.Length {
					last.Length = end - last.Base
				}
				if !usableOnly {
					last.UsableOnly = false
				}
				continue
			}
		}
		merged = append(merged, Segment{Base: r.Base, Length: r.Length, UsableOnly: usableOnly})
	}

	for i := range merged {
		base := util.Roundup(merged[i].Base, pageSize)
		end := util.Rounddown(merged[i].Base+merged[i].Length, pageSize)
		if end < base {
			end = base
		}
		merged[i].Base = base
		merged[i].Length = end - base
	}

	overflow := 0
	if len(merged) > MaxSegments {
		overflow = len(merged) - MaxSegments
		merged = merged[:MaxSegments]
	}

	return merged, overflow
}

// LargestUsable returns the largest segment that is UsableOnly, for use
// as the boot bump allocator's backing region. ok is false if no usable
// segment exists at all.
func LargestUsable(segments []Segment) (Segment, bool) {
	var best Segment
	found := false
	for _, s := range segments {
		if !s.UsableOnly {
			continue
		}
		if !found || s.Length > best.Length {
			best = s
			found = true
		}
	}
	return best, found
}

// InitModuleName is the boot module the kernel looks for to locate the
// init process. It is just a configured string, not a protocol constant;
// a bootloader glue layer is free to pass a different name in.
const InitModuleName = "coreinit"

// FindModule returns the module named name, or ok==false if it is
// absent. Callers needing O(1) lookup across many modules should use
// package moddir instead of repeated linear scans.
func FindModule(modules []RawModule, name string) (RawModule, bool) {
	for _, m := range modules {
		if m.Name == name {
			return m, true
		}
	}
	return RawModule{}, false
}
