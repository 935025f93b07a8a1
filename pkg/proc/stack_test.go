package proc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deet-dbg/deet/pkg/symbols"
)

type fakeFunc struct {
	name      string
	low, high uint64
	file      string
	firstLine int
}

type fakeSymbols struct {
	funcs []fakeFunc
	entry string
}

func (s *fakeSymbols) PCToLocation(pc uint64) (*symbols.Location, bool) {
	for _, fn := range s.funcs {
		if pc >= fn.low && pc < fn.high {
			return &symbols.Location{PC: pc, Function: fn.name, File: fn.file, Line: fn.firstLine + int(pc-fn.low)}, true
		}
	}
	return nil, false
}

func (s *fakeSymbols) EntryFunction() string { return s.entry }

type fakeStack struct {
	regs  fakeRegisters
	words map[uint64]uint64
}

func (s *fakeStack) Registers() (Registers, error) { return s.regs, nil }

func (s *fakeStack) ReadWord(addr uint64) (uint64, error) {
	w, ok := s.words[addr]
	if !ok {
		return 0, errUnmapped
	}
	return w, nil
}

var callchainSymbols = &fakeSymbols{
	entry: "main.main",
	funcs: []fakeFunc{
		{name: "main.leaf", low: 0x1000, high: 0x1100, file: "/src/main.go", firstLine: 100},
		{name: "main.middle", low: 0x1100, high: 0x1200, file: "/src/main.go", firstLine: 200},
		{name: "main.main", low: 0x1200, high: 0x1300, file: "/src/main.go", firstLine: 300},
		{name: "runtime.main", low: 0x2000, high: 0x2100, file: "/go/proc.go", firstLine: 400},
	},
}

// threeFrames is a stack stopped in leaf, called from middle, called from
// main.main, called from runtime.main.
func threeFrames() *fakeStack {
	return &fakeStack{
		regs: fakeRegisters{pc: 0x1010, sp: 0x7000, bp: 0x7010},
		words: map[uint64]uint64{
			0x7010: 0x7040, 0x7018: 0x1120,
			0x7040: 0x7080, 0x7048: 0x1230,
			0x7080: 0x70c0, 0x7088: 0x2010,
			0x70c0: 0, 0x70c8: 0,
		},
	}
}

func TestStacktraceStopsAtEntryFunction(t *testing.T) {
	frames, err := Stacktrace(threeFrames(), callchainSymbols, 0)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	names := []string{frames[0].Location.Function, frames[1].Location.Function, frames[2].Location.Function}
	assert.Equal(t, []string{"main.leaf", "main.middle", "main.main"}, names)
	assert.Equal(t, uint64(0x1010), frames[0].PC)
	assert.Equal(t, uint64(0x1120), frames[1].PC)

	// Callers are resolved at the call instruction, one byte before the
	// return address.
	assert.Equal(t, 100+0x10, frames[0].Location.Line)
	assert.Equal(t, 200+0x1f, frames[1].Location.Line)
	assert.Equal(t, "main.middle (/src/main.go:231)", frames[1].String())
}

func TestStacktraceReturnAddressAtFunctionEnd(t *testing.T) {
	s := threeFrames()
	// A call that is the last instruction of main.middle returns to the
	// first byte of main.main.
	s.words[0x7018] = 0x1200
	frames, err := Stacktrace(s, callchainSymbols, 0)
	require.NoError(t, err)
	assert.Equal(t, "main.middle", frames[1].Location.Function)
}

func TestStacktraceDepthLimit(t *testing.T) {
	frames, err := Stacktrace(threeFrames(), callchainSymbols, 2)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestStacktraceNullBasePointer(t *testing.T) {
	syms := &fakeSymbols{entry: "main", funcs: callchainSymbols.funcs}
	frames, err := Stacktrace(threeFrames(), syms, 0)
	require.NoError(t, err)
	// leaf, middle, main.main, runtime.main; the frame of runtime.main
	// holds null links.
	require.Len(t, frames, 4)
	assert.Equal(t, "runtime.main", frames[3].Location.Function)
}

func TestStacktracePartialOnReadFailure(t *testing.T) {
	s := threeFrames()
	delete(s.words, 0x7048)
	frames, err := Stacktrace(s, callchainSymbols, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnmapped))
	require.Len(t, frames, 2)
	assert.Equal(t, "main.middle", frames[1].Location.Function)
}

func TestStacktraceNonGrowingChain(t *testing.T) {
	s := threeFrames()
	s.words[0x7040] = 0x7010
	frames, err := Stacktrace(s, callchainSymbols, 0)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestStacktraceUnknownPC(t *testing.T) {
	s := &fakeStack{regs: fakeRegisters{pc: 0x9999, bp: 0}}
	frames, err := Stacktrace(s, callchainSymbols, 0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "?? (0x9999)", frames[0].String())
}
