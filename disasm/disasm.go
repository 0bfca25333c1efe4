// Package disasm renders the faulting instruction at a panic site as
// assembly text, for inclusion in the boot log. It only runs on the
// already-diverging fault path; a decode failure is reported inline
// rather than propagated.
package disasm

import "golang.org/x/arch/x86/x86asm"

// maxInstructionLen is the longest possible x86-64 instruction encoding.
const maxInstructionLen = 15

// Describe decodes the instruction at rip from bytes (which must start
// at rip and contain at least maxInstructionLen bytes, or fewer at the
// end of a mapped page) and renders it in AT&T syntax.
func Describe(rip uintptr, bytes []byte) string {
	if len(bytes) > maxInstructionLen {
		bytes = bytes[:maxInstructionLen]
	}

	inst, err := x86asm.Decode(bytes, 64)
	if err != nil {
		return "<undecodable: " + err.Error() + ">"
	}

	return x86asm.GNUSyntax(inst, uint64(rip), nil)
}
