package proc

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// maxInstructionLength is the maximum size in bytes of an x86 instruction.
const maxInstructionLength = 15

// AsmInstruction represents one assembly instruction.
type AsmInstruction struct {
	Loc   uint64
	Bytes []byte
	Inst  *x86asm.Inst
}

// Text returns the instruction in GNU syntax.
func (inst *AsmInstruction) Text() string {
	if inst.Inst == nil {
		return "?"
	}
	return x86asm.GNUSyntax(*inst.Inst, inst.Loc, nil)
}

func (inst *AsmInstruction) String() string {
	return fmt.Sprintf("%#x:\t%s", inst.Loc, inst.Text())
}

// DisassembleAt decodes the instruction at pc. Installed traps are masked
// so the original instruction is shown.
func DisassembleAt(inf *Inferior, bps *BreakpointMap, pc uint64) (*AsmInstruction, error) {
	mem := make([]byte, maxInstructionLength)
	n, err := inf.ReadMemory(mem, pc, bps)
	if err != nil {
		return nil, err
	}
	return decodeInstruction(mem[:n], pc)
}

func decodeInstruction(mem []byte, pc uint64) (*AsmInstruction, error) {
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		return &AsmInstruction{Loc: pc, Bytes: mem[:1]}, fmt.Errorf("decoding instruction at %#x: %w", pc, err)
	}
	return &AsmInstruction{Loc: pc, Bytes: mem[:inst.Len], Inst: &inst}, nil
}
