package cpu

// ReadMSR reads the model-specific register at addr.
func ReadMSR(addr uint32) uint64

// WriteMSR writes value to the model-specific register at addr.
func WriteMSR(addr uint32, value uint64)

// CPUID executes the CPUID instruction for the given leaf/subleaf.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// LoadGDT loads desc into the GDTR and performs the long jump required
// to reload CS, following it with fresh data-segment loads.
func LoadGDT(desc *TableDesc, codeSelector, dataSelector uint16)

// LoadIDT loads desc into the IDTR.
func LoadIDT(desc *TableDesc)

// LoadTR loads the task register with selector.
func LoadTR(selector uint16)

// ReadCR3 returns the current top-level page-table physical address.
func ReadCR3() uintptr

// ReadCR4 returns the current value of CR4.
func ReadCR4() uint64

// InvalidatePage flushes the TLB entry covering virt.
func InvalidatePage(virt uintptr)

// Halt executes HLT, parking the CPU until the next interrupt.
func Halt()

// EnableInterrupts executes STI.
func EnableInterrupts()

// DisableInterrupts executes CLI.
func DisableInterrupts()

// SwitchStackAndEnter atomically installs newCR3, switches RSP to
// newRSP, and jumps to entry with arg loaded into the platform's first
// argument register (RDI), so entry can recover whatever transfer record
// was written to the new stack before the switch. This must be one
// indivisible sequence: once CR3 changes, the bootloader-reclaimable
// pages backing the old stack may be recycled by a concurrent
// allocation, so nothing may dereference the old stack (including an
// instruction-pointer-relative return address) after the CR3 write.
func SwitchStackAndEnter(newCR3, newRSP, entry, arg uintptr)

// EnterUserMode installs newCR3 and performs SYSRET to entry with the
// given rflags. Never returns. The target CS/SS come from the STAR MSR
// programmed by syscall.Init, not from any argument here.
func EnterUserMode(newCR3, entry, rflags uintptr)
