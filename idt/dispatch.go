package idt

import (
	"fmt"

	"substrate/cpu"
)

var names = map[uint64]string{
	DivisionError:          "Division Error",
	Debug:                  "Debug Exception",
	NonMaskableInterrupt:   "Non Maskable Interrupt",
	Breakpoint:             "Breakpoint Exception",
	Overflow:               "Overflow",
	BoundRangeExceeded:     "Bound Range Exceeded",
	InvalidOpcode:          "Invalid Opcode",
	DeviceNotAvailable:     "Device Not Available",
	DoubleFault:            "Double Fault",
	InvalidTSS:             "Invalid TSS",
	SegmentNotPresent:      "Segment Not Present",
	StackSegmentFault:      "Stack Segment Fault",
	GeneralProtectionFault: "General Protection Fault",
	PageFault:              "Page Fault",
	X87FloatingPoint:       "x87 Floating Point",
	AlignmentCheck:         "Alignment Check",
	MachineCheck:           "Machine Check",
	SIMDFloatingPoint:      "SIMD Floating Point",
	Virtualization:         "Virtualization",
	ControlProtection:      "Control Protection",
	HypervisorInjection:    "Hypervisor Injection",
	VMMCommunication:       "VMM Communication",
	Security:               "Security Exception",
}

// OnFault, when set, is called for every fatal exception just before the
// default panic-with-message, which still follows. It lets a caller hook
// in extra fault reporting (package disasm, the boot log ring) without
// this package depending on either; nothing in the kernel sets it.
var OnFault func(vector uint64, errorCode uint64, frame *cpu.StackFrame)

// OnTimerTick, when set, is called on every local APIC timer interrupt,
// after dispatch has already identified the vector but before returning
// to the interrupted code. Package apic installs this to send EOI and
// advance its tick count; idt never imports apic; apic imports idt for
// vector numbers, and wiring it the other way would cycle.
var OnTimerTick func()

// readCR2 returns the faulting address recorded by the last page fault.
func readCR2() uintptr

// idtDispatch is called by every exception stub in stubs_amd64.s. It
// never returns for a fatal exception (panic unwinds the kernel); the
// breakpoint and the two LAPIC vectors are the only ones that return
// normally to the interrupted code.
func idtDispatch(vector, errorCode uint64, frame *cpu.StackFrame) {
	switch vector {
	case LapicSpuriousVector:
		return
	case LapicTimerVector:
		if OnTimerTick != nil {
			OnTimerTick()
		}
		return
	case Breakpoint:
		fmt.Printf("breakpoint at rip=%#x\n", frame.RIP)
		return
	}

	if OnFault != nil {
		OnFault(vector, errorCode, frame)
	}

	name := names[vector]
	if name == "" {
		name = fmt.Sprintf("vector %d", vector)
	}

	if vector == PageFault {
		panic(fmt.Sprintf("%s (rip=%#x rsp=%#x addr=%#x error=%#b)",
			name, frame.RIP, frame.RSP, readCR2(), errorCode))
	}
	if hasErrorCode(int(vector)) {
		panic(fmt.Sprintf("%s (rip=%#x error=%#b)", name, frame.RIP, errorCode))
	}
	panic(fmt.Sprintf("%s (rip=%#x)", name, frame.RIP))
}
