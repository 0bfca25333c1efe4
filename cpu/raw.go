// Package cpu exposes the raw x86_64 primitives the rest of the kernel
// is built on: model-specific registers, control registers, the
// GDT/IDT/TSS descriptor tables, and the handful of privileged
// instructions (LGDT, LIDT, LTR, INVLPG, HLT, CLI/STI) that have no
// meaning outside ring 0.
//
// Every exported function in instr.go is backed by a hand-written
// assembly stub in instr_amd64.s; there is no third-party library that can express
// a ring-0-only instruction, so this package is deliberately minimal
// standard-library-and-assembly, unlike the rest of the kernel.
package cpu

// SegmentFlags are the bits that may be set in a GDT segment descriptor.
type SegmentFlags uint64

const (
	SegAccessed     SegmentFlags = 1 << 40
	SegReadable     SegmentFlags = 1 << 41
	SegWritable     SegmentFlags = 1 << 41
	SegConforming   SegmentFlags = 1 << 42
	SegExpandDown   SegmentFlags = 1 << 42
	SegExecutable   SegmentFlags = 1 << 43
	SegData         SegmentFlags = 1 << 44
	SegUser         SegmentFlags = 3 << 45
	SegPresent      SegmentFlags = 1 << 47
	SegLongModeCode SegmentFlags = 1 << 53
	Seg32Bit        SegmentFlags = 1 << 54
	SegGranularity  SegmentFlags = 1 << 55
	SegAvailableTSS SegmentFlags = 0x9 << 40
	SegLimitMax     SegmentFlags = 0x000F_0000_0000_FFFF
)

// GateFlags are the bits that may be set in an IDT gate descriptor.
type GateFlags uint64

const (
	GatePresent       GateFlags = 1 << 47
	GateInterruptGate GateFlags = 0b1110 << 40
	GateTrapGate      GateFlags = 0b1111 << 40
)

// TableDesc is the operand of LGDT/LIDT: a 10-byte {limit, base} pseudo
// descriptor.
type TableDesc struct {
	Limit uint16
	Base  uintptr
}

// TaskStateSegment is the 64-bit TSS referenced by the GDT's TSS
// descriptor; only the interrupt and privilege stack tables are used.
type TaskStateSegment struct {
	reserved0            uint32
	PrivilegeStackTable   [3]uint64
	reserved1             uint64
	InterruptStackTable   [7]uint64
	reserved2             uint64
	reserved3             uint16
	IOMapBase             uint16
}

// StackFrame is the layout the CPU pushes on an interrupt/exception that
// doesn't push an error code.
type StackFrame struct {
	RIP, CS, RFlags, RSP, SS uint64
}

// Model-specific register addresses.
const (
	MSREfer        = 0xC000_0080
	MSRStar        = 0xC000_0081
	MSRLstar       = 0xC000_0082
	MSRFmask       = 0xC000_0084
	MSRApicBase    = 0x1B
)

// EferSyscallEnable enables the SYSCALL/SYSRET instructions.
const EferSyscallEnable = 1 << 0

// Local APIC register byte offsets (added to the MMIO base from
// MSRApicBase) and related constants.
const (
	LapicEOI                   = 0x0B0
	LapicTimerInterruptVector  = 0x320
	LapicSpuriousVector        = 0x0F0
	LapicInitialCount          = 0x380
	LapicCurrentCount          = 0x390
	LapicDivideConfig          = 0x3E0

	LapicDivideBy16    = 3
	LapicTimerPeriodic = 1 << 17
)
