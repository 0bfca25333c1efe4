// Package process tracks the one process the core kernel ever runs: the
// init process loaded from the coreinit boot module. There is no
// scheduler yet, so "current process" is a single kernel-global.
package process

import (
	"encoding/binary"
	"fmt"

	"substrate/mem"
	"substrate/paging"
)

// Process records the one piece of state the syscall handlers need about
// the running program: where its top-level page table lives.
type Process struct {
	// AddressSpace is the physical address of the process's L4 table.
	AddressSpace uintptr
}

// current is the kernel-global running process. Until a scheduler exists
// only the syscall path touches it, and syscalls run to completion without
// preemption, so no lock is needed.
var current Process

// Current returns the running process.
func Current() *Process { return &current }

// SetCurrent installs p as the running process.
func SetCurrent(p Process) { current = p }

// initMagic is the 8 ASCII bytes "<limine>" read in native byte order. A
// swapped-byte match on load indicates a coreinit image built for the
// wrong endianness.
const initMagic uint64 = 0x3E656E696D696C3C

// Header is the fixed layout every coreinit image must begin with.
type Header struct {
	Magic      uint64
	ImageStart uintptr
	EntryPoint uintptr
}

const headerSize = 8 + 8 + 8

// errBadHeader and errBadEntry report the two ways a coreinit image can
// fail validation.
type errBadHeader struct{ wrongEndian bool }

func (e errBadHeader) Error() string {
	if e.wrongEndian {
		return "process: coreinit image header has swapped-endianness magic"
	}
	return "process: coreinit image does not start with a valid header"
}

type errBadEntry struct{}

func (errBadEntry) Error() string { return "process: coreinit entry point lies outside its image" }

// ParseHeader reads and validates the Header embedded at the start of
// image. image is the module's raw bytes as loaded by the bootloader.
func ParseHeader(image []byte) (Header, error) {
	if len(image) < headerSize {
		return Header{}, errBadHeader{}
	}

	magic := binary.LittleEndian.Uint64(image[0:8])
	if magic != initMagic {
		swapped := bits64Swap(initMagic)
		return Header{}, errBadHeader{wrongEndian: magic == swapped}
	}

	h := Header{
		Magic:      magic,
		ImageStart: uintptr(binary.LittleEndian.Uint64(image[8:16])),
		EntryPoint: uintptr(binary.LittleEndian.Uint64(image[16:24])),
	}

	if h.EntryPoint == 0 || h.EntryPoint < h.ImageStart ||
		h.EntryPoint >= h.ImageStart+uintptr(len(image)) {
		return Header{}, errBadEntry{}
	}

	return h, nil
}

func bits64Swap(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	for i, j := 0, 7; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return binary.LittleEndian.Uint64(b[:])
}

// AllocPage is the callback paging needs to materialize new page-table
// pages while mapping the init image; Load never allocates leaf pages
// itself, since the module's physical pages already exist.
type AllocPage func() (uintptr, error)

// Load builds a fresh address space for the coreinit image: the kernel's
// L4 page copied verbatim (one page, which carries every upper-half
// entry), followed by mapping the image's own physical
// pages at ImageStart with WRITABLE|USER. It returns the new L4's
// physical address.
func Load(kernelL4 uintptr, imagePhysStart uintptr, imageSize uintptr, h Header, allocPage AllocPage) (uintptr, error) {
	newL4Phys, err := allocPage()
	if err != nil {
		return 0, err
	}

	kernelL4Ptr := (*paging.Table)(mem.HHDMPointer(kernelL4))
	newL4Ptr := (*paging.Table)(mem.HHDMPointer(newL4Phys))
	*newL4Ptr = *kernelL4Ptr

	if err := paging.MapRange(newL4Ptr, mem.HHDMOffset, paging.AllocPage(allocPage),
		imagePhysStart, h.ImageStart, imageSize,
		paging.Writable|paging.User); err != nil {
		return 0, err
	}

	return newL4Phys, nil
}

// String reports h for diagnostic logging.
func (h Header) String() string {
	return fmt.Sprintf("coreinit{image=%#x entry=%#x}", h.ImageStart, h.EntryPoint)
}
