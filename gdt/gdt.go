// Package gdt builds and installs the kernel's Global Descriptor Table:
// the kernel/user code and data segments, and the Task State Segment
// used to point the CPU at a dedicated double-fault stack.
package gdt

import (
	"unsafe"

	"substrate/cpu"
	"substrate/mem"
)

// Segment selectors. These are fixed at build time and referenced by the
// syscall trampoline's STAR encoding as well as the IDT's gate
// descriptors.
const (
	KernelCodeSelector uint16 = 8
	KernelDataSelector uint16 = 8 * 2
	UserDataSelector   uint16 = (8 * 3) | 0b11
	UserCodeSelector   uint16 = (8 * 4) | 0b11
	TSSSelector        uint16 = 8 * 5
)

// DoubleFaultStackSize is reserved for the double-fault handler so that a
// kernel-stack overflow (which would otherwise turn the double fault into
// an unrecoverable triple fault) still has somewhere to run.
const DoubleFaultStackSize = mem.PageSize * 4

// DoubleFaultStackIndex is this stack's slot in the TSS's Interrupt Stack
// Table.
const DoubleFaultStackIndex = 0

var (
	table [7]uint64
	desc  cpu.TableDesc
	tss   cpu.TaskStateSegment
)

func kernelCodeSegment() uint64 {
	return uint64(cpu.SegAccessed | cpu.SegPresent | cpu.SegData | cpu.SegExecutable |
		cpu.SegReadable | cpu.SegLongModeCode | cpu.SegGranularity | cpu.SegLimitMax)
}

func kernelDataSegment() uint64 {
	return uint64(cpu.SegAccessed | cpu.SegPresent | cpu.SegData | cpu.SegWritable |
		cpu.Seg32Bit | cpu.SegGranularity | cpu.SegLimitMax)
}

func userDataSegment() uint64 {
	return uint64(cpu.SegAccessed | cpu.SegPresent | cpu.SegData | cpu.SegWritable |
		cpu.Seg32Bit | cpu.SegUser | cpu.SegGranularity | cpu.SegLimitMax)
}

func userCodeSegment() uint64 {
	return uint64(cpu.SegAccessed | cpu.SegPresent | cpu.SegData | cpu.SegExecutable |
		cpu.SegReadable | cpu.SegLongModeCode | cpu.SegUser | cpu.SegGranularity | cpu.SegLimitMax)
}

// Init builds the GDT and TSS, allocates a dedicated double-fault stack
// from ba, and installs both into the CPU. kernelStackTopPhys is the
// physical top of the kernel stack built by kstack.Init. Must only be
// called once, and only after the kernel stack has been set up.
func Init(ba *mem.BootAllocator, kernelStackTopPhys uintptr) error {
	dfStack, err := ba.Allocate(DoubleFaultStackSize, 1)
	if err != nil {
		return err
	}
	dfStackTop := dfStack + mem.HHDMOffset + DoubleFaultStackSize

	table[0] = 0
	table[1] = kernelCodeSegment()
	table[2] = kernelDataSegment()
	table[3] = userDataSegment()
	table[4] = userCodeSegment()
	table[5] = 0
	table[6] = 0

	tss = cpu.TaskStateSegment{}
	tss.InterruptStackTable[DoubleFaultStackIndex] = uint64(dfStackTop)
	tss.PrivilegeStackTable[0] = uint64(kernelStackTopPhys + mem.HHDMOffset)

	tssBase := uint64(uintptr(unsafe.Pointer(&tss)))
	tssSize := uint64(unsafe.Sizeof(tss))

	table[5] |= (tssSize - 1) & 0xFFFF
	table[5] |= ((tssBase & 0xFFFFFF) << 16) | ((tssBase & 0xFF000000) << 32)
	table[5] |= uint64(cpu.SegPresent | cpu.SegAvailableTSS)
	table[6] |= tssBase >> 32

	desc = cpu.TableDesc{
		Base:  uintptr(unsafe.Pointer(&table)),
		Limit: uint16(unsafe.Sizeof(table)) - 1,
	}

	cpu.LoadGDT(&desc, KernelCodeSelector, KernelDataSelector)
	cpu.LoadTR(TSSSelector)
	return nil
}
