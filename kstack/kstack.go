// Package kstack sizes and allocates the kernel's own stack, separate
// from whatever stack the bootloader handed the kernel at entry.
package kstack

import "substrate/mem"

// Size is the kernel stack's size in bytes.
const Size = mem.PageSize * 16

// Init carves out a dedicated kernel stack from ba and returns its top's
// physical address (base+Size). Like any other boot-allocated memory it
// lives in the direct map; its virtual address is this value plus
// mem.HHDMOffset.
func Init(ba *mem.BootAllocator) (uintptr, error) {
	base, err := ba.Allocate(Size, 1)
	if err != nil {
		return 0, err
	}
	return base + Size, nil
}
