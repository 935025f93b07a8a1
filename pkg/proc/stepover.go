package proc

import "fmt"

// BreakpointMismatchError is reported when re-installing a breakpoint reads
// a byte other than the one recorded when it was first installed. This
// happens when the target modifies its own code.
type BreakpointMismatchError struct {
	Addr     uint64
	Recorded byte
	Found    byte
}

func (e *BreakpointMismatchError) Error() string {
	return fmt.Sprintf("breakpoint at %#x: recorded original byte %#02x, found %#02x", e.Addr, e.Recorded, e.Found)
}

// stepOverBreakpoint executes the instruction displaced by bp exactly once
// and leaves the trap in place afterwards. The inferior must be stopped
// with its PC at bp.Addr.
//
// A non nil StopEvent is returned if the process terminated while
// stepping; the breakpoint is then not re-installed. If stepping fails
// while the process is still alive the trap is put back before returning.
func (inf *Inferior) stepOverBreakpoint(bp *Breakpoint) (ev *StopEvent, err error) {
	// 1. Put the original instruction back.
	if _, err := inf.WriteByte(bp.Addr, bp.OriginalData); err != nil {
		return nil, fmt.Errorf("could not restore breakpoint %d at %#x: %w", bp.ID, bp.Addr, err)
	}
	delete(inf.installed, bp.Addr)
	defer func() {
		if err != nil && !inf.installed[bp.Addr] && inf.state.Alive() {
			inf.rearm(bp)
		}
	}()

	// 2. The PC must point at the start of the restored instruction.
	regs, err := inf.proc.Registers()
	if err != nil {
		return nil, fmt.Errorf("could not read registers: %w", err)
	}
	if regs.PC() != bp.Addr {
		if err := inf.proc.SetPC(bp.Addr); err != nil {
			return nil, fmt.Errorf("could not set PC to %#x: %w", bp.Addr, err)
		}
	}

	// 3. Execute it.
	ev, err = inf.singleStep()
	if err != nil || ev != nil {
		return ev, err
	}

	// 4. Re-arm the trap.
	found, err := inf.WriteByte(bp.Addr, BreakpointInstruction)
	if err != nil {
		return nil, fmt.Errorf("could not re-install breakpoint %d at %#x: %w", bp.ID, bp.Addr, err)
	}
	inf.installed[bp.Addr] = true
	regs, err = inf.proc.Registers()
	if err != nil {
		return nil, fmt.Errorf("could not read registers: %w", err)
	}
	inf.pc = regs.PC()
	if found != bp.OriginalData {
		mismatch := &BreakpointMismatchError{Addr: bp.Addr, Recorded: bp.OriginalData, Found: found}
		bp.OriginalData = found
		return nil, mismatch
	}

	// 5. The caller continues from here.
	return nil, nil
}

// rearm puts the trap of bp back after an interrupted step-over.
func (inf *Inferior) rearm(bp *Breakpoint) {
	if _, err := inf.WriteByte(bp.Addr, BreakpointInstruction); err != nil {
		inf.log.Errorf("could not re-install breakpoint %d at %#x: %v", bp.ID, bp.Addr, err)
		return
	}
	inf.installed[bp.Addr] = true
}
