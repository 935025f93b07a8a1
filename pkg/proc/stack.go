package proc

import (
	"fmt"

	"github.com/deet-dbg/deet/pkg/symbols"
)

// DefaultStacktraceDepth bounds the frame pointer walk when the caller does
// not specify a depth.
const DefaultStacktraceDepth = 64

// SymbolLookup is the part of the symbol table needed to name frames.
type SymbolLookup interface {
	PCToLocation(pc uint64) (*symbols.Location, bool)
	EntryFunction() string
}

// StackReader is the part of an inferior needed to walk its stack.
type StackReader interface {
	Registers() (Registers, error)
	ReadWord(addr uint64) (uint64, error)
}

// Stackframe represents a frame in a system stack.
type Stackframe struct {
	// PC is the current instruction of the innermost frame, or the return
	// address for callers.
	PC uint64
	// BP is the frame base: the address of the saved base pointer.
	BP uint64
	// Location is the source position of the frame. For callers it is the
	// position of the call instruction.
	Location symbols.Location
}

func (frame Stackframe) String() string {
	return frame.Location.String()
}

// Stacktrace walks the frame pointer chain of a stopped inferior, innermost
// frame first. Each frame stores its return address at [bp+8] and the
// caller's base pointer at [bp].
//
// The walk ends after the frame of the entry function, at a null or
// misaligned base pointer, when the chain stops growing towards the stack
// base, or after depth frames. If a read fails the frames gathered so far
// are returned along with the error.
func Stacktrace(mem StackReader, syms SymbolLookup, depth int) ([]Stackframe, error) {
	if depth <= 0 {
		depth = DefaultStacktraceDepth
	}
	regs, err := mem.Registers()
	if err != nil {
		return nil, fmt.Errorf("could not read registers: %w", err)
	}
	pc, bp := regs.PC(), regs.BP()
	entry := syms.EntryFunction()

	frames := make([]Stackframe, 0, 8)
	for len(frames) < depth {
		frame := Stackframe{PC: pc, BP: bp, Location: lookupFrame(syms, pc, len(frames) == 0)}
		frames = append(frames, frame)
		if frame.Location.Function == entry {
			break
		}
		if bp == 0 || bp%8 != 0 {
			break
		}
		ret, err := mem.ReadWord(bp + 8)
		if err != nil {
			return frames, fmt.Errorf("reading return address of frame %d: %w", len(frames)-1, err)
		}
		next, err := mem.ReadWord(bp)
		if err != nil {
			return frames, fmt.Errorf("reading saved base pointer of frame %d: %w", len(frames)-1, err)
		}
		if ret == 0 || next <= bp {
			break
		}
		pc, bp = ret, next
	}
	return frames, nil
}

// lookupFrame resolves the location of a frame. Return addresses point
// past the call instruction, which can belong to the next line or even the
// next function, so callers are resolved at ret-1.
func lookupFrame(syms SymbolLookup, pc uint64, innermost bool) symbols.Location {
	q := pc
	if !innermost && q > 0 {
		q--
	}
	loc, ok := syms.PCToLocation(q)
	if !ok {
		return symbols.Location{PC: pc}
	}
	r := *loc
	r.PC = pc
	return r
}
