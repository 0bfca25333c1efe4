// Package idt builds and installs the kernel's Interrupt Descriptor
// Table: gate descriptors for every CPU exception the kernel handles,
// plus the two local-APIC vectors (timer and spurious).
package idt

import (
	"unsafe"

	"substrate/cpu"
	"substrate/gdt"
)

// CPU exception vectors.
const (
	DivisionError         = 0
	Debug                 = 1
	NonMaskableInterrupt  = 2
	Breakpoint            = 3
	Overflow              = 4
	BoundRangeExceeded    = 5
	InvalidOpcode         = 6
	DeviceNotAvailable    = 7
	DoubleFault           = 8
	InvalidTSS            = 10
	SegmentNotPresent     = 11
	StackSegmentFault     = 12
	GeneralProtectionFault = 13
	PageFault             = 14
	X87FloatingPoint      = 16
	AlignmentCheck        = 17
	MachineCheck          = 18
	SIMDFloatingPoint     = 19
	Virtualization        = 20
	ControlProtection     = 21
	HypervisorInjection   = 28
	VMMCommunication      = 29
	Security              = 30
)

// Local APIC interrupt vectors.
const (
	LapicSpuriousVector = 0x64
	LapicTimerVector    = 0x65
)

// hasErrorCode reports whether the CPU pushes a hardware error code for
// vector before the interrupt frame.
func hasErrorCode(vector int) bool {
	switch vector {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck,
		ControlProtection, VMMCommunication, Security:
		return true
	default:
		return false
	}
}

var table [256][2]uint64
var desc cpu.TableDesc

func createGate(disableInterrupts bool, offset uint64, ist int) [2]uint64 {
	var low, high uint64
	high |= offset >> 32
	low |= (offset & 0xFFFF_0000) << 32
	low |= offset & 0xFFFF
	low |= uint64(cpu.GatePresent)
	low |= uint64(ist) << 32
	if disableInterrupts {
		low |= uint64(cpu.GateInterruptGate)
	} else {
		low |= uint64(cpu.GateTrapGate)
	}
	low |= uint64(gdt.KernelCodeSelector) << 16
	return [2]uint64{low, high}
}

func trapGate(offset uintptr) [2]uint64      { return createGate(false, uint64(offset), 0) }
func interruptGate(offset uintptr) [2]uint64 { return createGate(true, uint64(offset), 0) }

// Init builds the IDT and installs it. Must only be called once, after
// the GDT has been installed (gate descriptors reference its code
// selector).
func Init(doubleFaultStackIndex int) {
	table[DivisionError] = trapGate(stubAddr(DivisionError))
	table[Debug] = trapGate(stubAddr(Debug))
	table[NonMaskableInterrupt] = trapGate(stubAddr(NonMaskableInterrupt))
	table[Breakpoint] = trapGate(stubAddr(Breakpoint))
	table[Overflow] = trapGate(stubAddr(Overflow))
	table[BoundRangeExceeded] = trapGate(stubAddr(BoundRangeExceeded))
	table[InvalidOpcode] = trapGate(stubAddr(InvalidOpcode))
	table[DeviceNotAvailable] = trapGate(stubAddr(DeviceNotAvailable))
	table[DoubleFault] = createGate(false, uint64(stubAddr(DoubleFault)), doubleFaultStackIndex+1)
	table[InvalidTSS] = trapGate(stubAddr(InvalidTSS))
	table[SegmentNotPresent] = trapGate(stubAddr(SegmentNotPresent))
	table[StackSegmentFault] = trapGate(stubAddr(StackSegmentFault))
	table[GeneralProtectionFault] = trapGate(stubAddr(GeneralProtectionFault))
	table[PageFault] = trapGate(stubAddr(PageFault))
	table[X87FloatingPoint] = trapGate(stubAddr(X87FloatingPoint))
	table[AlignmentCheck] = trapGate(stubAddr(AlignmentCheck))
	table[MachineCheck] = trapGate(stubAddr(MachineCheck))
	table[SIMDFloatingPoint] = trapGate(stubAddr(SIMDFloatingPoint))
	table[Virtualization] = trapGate(stubAddr(Virtualization))
	table[ControlProtection] = trapGate(stubAddr(ControlProtection))
	table[HypervisorInjection] = trapGate(stubAddr(HypervisorInjection))
	table[VMMCommunication] = trapGate(stubAddr(VMMCommunication))
	table[Security] = trapGate(stubAddr(Security))

	table[LapicSpuriousVector] = interruptGate(lapicSpuriousStubAddr())
	table[LapicTimerVector] = interruptGate(lapicTimerStubAddr())

	desc = cpu.TableDesc{
		Base:  uintptr(unsafe.Pointer(&table)),
		Limit: uint16(unsafe.Sizeof(table)) - 1,
	}
	cpu.LoadIDT(&desc)
}
