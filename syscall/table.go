// Package syscall installs and dispatches the userland "syscall"
// instruction: a fixed-size table of handlers reached through a naked
// trampoline that lives on the kernel stack, never the caller's.
package syscall

import (
	"reflect"

	"substrate/cpu"
	"substrate/gdt"
	"substrate/mem"
)

// HandlerFn is the signature every entry in the dispatch table must have:
// six machine-word arguments (process ID plus five more), returning an
// encoded SysResult word.
type HandlerFn func(a0, a1, a2, a3, a4, a5 uintptr) uintptr

// Count is the number of valid syscall indices. Out-of-range indices are
// rejected by the trampoline before any handler runs.
const Count = 5

// Indices into the dispatch table. These are stable ABI; userland links
// against these numbers directly.
const (
	Terminate = iota
	MapMemory
	UnmapMemory
	AcquireFramebuffer
	ReleaseFramebuffer
)

var table = [Count]HandlerFn{
	Terminate:          terminate,
	MapMemory:          mapMemory,
	UnmapMemory:        unmapMemory,
	AcquireFramebuffer: acquireFramebuffer,
	ReleaseFramebuffer: releaseFramebuffer,
}

// memTok witnesses that the global memory tracker was initialized before
// Init was called; handlers reach the tracker through it rather than
// threading it through every call.
var memTok mem.Tok

// trampolineEntry is implemented in trampoline_amd64.s; its address is
// programmed into LSTAR.
func trampolineEntry()

// kernelStackTop holds the virtual address of the kernel stack's top (the
// value kstack.Init returned, moved into the direct map) so the trampoline
// can read it without the assembler needing to know about the kstack
// package.
var kernelStackTop uintptr

// Dispatch is called by trampoline_amd64.s for every syscall whose index
// passed the bounds check. It is not itself bounds-checked again.
func Dispatch(index, a0, a1, a2, a3, a4, a5 uintptr) uintptr {
	return table[index](a0, a1, a2, a3, a4, a5)
}

func funcAddr(f func()) uintptr { return reflect.ValueOf(f).Pointer() }

// Init validates the dispatch table's index order, arms the SYSCALL/SYSRET
// MSRs, and records tok for use by the handlers. Must be called exactly
// once, after the GDT has been installed.
func Init(tok mem.Tok, stackTop uintptr) {
	assertTableOrder()

	memTok = tok
	kernelStackTop = stackTop

	efer := cpu.ReadMSR(cpu.MSREfer)
	efer |= cpu.EferSyscallEnable
	cpu.WriteMSR(cpu.MSREfer, efer)

	cpu.WriteMSR(cpu.MSRLstar, uint64(funcAddr(trampolineEntry)))

	const sysretBase = uint64(gdt.UserCodeSelector) - 2*8
	const syscallBase = uint64(gdt.KernelCodeSelector)
	cpu.WriteMSR(cpu.MSRStar, syscallBase<<32|sysretBase<<48)
}

// assertTableOrder panics if the dispatch table's index constants have
// drifted out of sync with its literal order; cheap enough to always run.
func assertTableOrder() {
	want := [Count]HandlerFn{terminate, mapMemory, unmapMemory, acquireFramebuffer, releaseFramebuffer}
	for i, fn := range table {
		if fn == nil {
			panic("syscall: dispatch table has a nil entry")
		}
		if reflect.ValueOf(fn).Pointer() != reflect.ValueOf(want[i]).Pointer() {
			panic("syscall: dispatch table order does not match its index constants")
		}
	}
}
