package proc

import (
	"fmt"
	"sort"
)

// BreakpointInstruction is the x86 INT 3 software breakpoint trap.
const BreakpointInstruction byte = 0xCC

// Breakpoint represents a user breakpoint. Stores information on the break
// point including the byte of data that originally was stored at that
// address.
type Breakpoint struct {
	// File & line information for printing.
	FunctionName string
	File         string
	Line         int

	ID   int    // Sequential number, in order of creation.
	Addr uint64 // Address breakpoint is set for.

	// OriginalData is the byte the trap instruction replaced. It is only
	// meaningful once Captured is true, until then it is a placeholder.
	OriginalData byte
	Captured     bool
}

func (bp *Breakpoint) String() string {
	if bp.FunctionName == "" {
		return fmt.Sprintf("Breakpoint %d at %#x", bp.ID, bp.Addr)
	}
	return fmt.Sprintf("Breakpoint %d at %#x in %s (%s:%d)", bp.ID, bp.Addr, bp.FunctionName, bp.File, bp.Line)
}

// BreakpointExistsError is returned when trying to set a breakpoint at
// an address that already has a breakpoint set for it.
type BreakpointExistsError struct {
	ID   int
	Addr uint64
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("Breakpoint %d already set at %#x", bpe.ID, bpe.Addr)
}

// BreakpointMap is the address keyed table of the user's breakpoints. It
// outlives the processes started by the session: entries are never removed
// and are installed into every new inferior.
type BreakpointMap struct {
	M map[uint64]*Breakpoint

	breakpointIDCounter int
}

// NewBreakpointMap creates an empty breakpoint table.
func NewBreakpointMap() *BreakpointMap {
	return &BreakpointMap{M: make(map[uint64]*Breakpoint)}
}

// Set records a breakpoint at addr with a placeholder original byte.
func (bpmap *BreakpointMap) Set(addr uint64) (*Breakpoint, error) {
	if bp, ok := bpmap.M[addr]; ok {
		return nil, BreakpointExistsError{ID: bp.ID, Addr: addr}
	}
	bpmap.breakpointIDCounter++
	bp := &Breakpoint{ID: bpmap.breakpointIDCounter, Addr: addr}
	bpmap.M[addr] = bp
	return bp, nil
}

// Find returns the breakpoint at addr.
func (bpmap *BreakpointMap) Find(addr uint64) (*Breakpoint, bool) {
	bp, ok := bpmap.M[addr]
	return bp, ok
}

// Len returns the number of breakpoints.
func (bpmap *BreakpointMap) Len() int {
	return len(bpmap.M)
}

// Sorted returns the breakpoints ordered by ID.
func (bpmap *BreakpointMap) Sorted() []*Breakpoint {
	r := make([]*Breakpoint, 0, len(bpmap.M))
	for _, bp := range bpmap.M {
		r = append(r, bp)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}
