// Package apic initializes the local APIC of the bootstrap CPU: enough
// to field the spurious-interrupt vector and run a periodic timer tick.
// Multi-CPU bring-up (and therefore I/O APIC routing to other cores) is
// out of scope.
package apic

import (
	"unsafe"

	"substrate/cpu"
	"substrate/idt"
	"substrate/mem"
)

func localApicBase() *uint32 {
	base := cpu.ReadMSR(cpu.MSRApicBase) & 0xFFFFF000
	return (*uint32)(unsafe.Pointer(uintptr(base) + mem.HHDMOffset))
}

func reg(base *uint32, offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(base)) + offset))
}

func sendEOI() {
	base := localApicBase()
	*reg(base, cpu.LapicEOI) = 0
}

// ticks counts local APIC timer interrupts since Init; exposed for
// boot-phase diagnostics, never consulted for correctness.
var ticks uint64

// Ticks returns the number of timer interrupts observed so far.
func Ticks() uint64 { return ticks }

// Init hardware-enables the local APIC, sets a spurious-interrupt vector
// to software-enable it, and arms a periodic timer. Must be called once
// per CPU core; this kernel only brings up the bootstrap CPU.
func Init() {
	base := cpu.ReadMSR(cpu.MSRApicBase) & 0xFFFFF000
	cpu.WriteMSR(cpu.MSRApicBase, base|1<<11) // bit 11: APIC global enable

	b := localApicBase()
	*reg(b, cpu.LapicSpuriousVector) = uint32(idt.LapicSpuriousVector) | (1 << 8)

	*reg(b, cpu.LapicDivideConfig) = cpu.LapicDivideBy16
	*reg(b, cpu.LapicTimerInterruptVector) = uint32(idt.LapicTimerVector) | cpu.LapicTimerPeriodic
	*reg(b, cpu.LapicInitialCount) = 0x100000

	idt.OnTimerTick = func() {
		ticks++
		sendEOI()
	}
}
