package proc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"syscall"

	"github.com/deet-dbg/deet/pkg/logflags"
)

// Registers is the subset of the register set the debugger interprets.
type Registers interface {
	PC() uint64
	SP() uint64
	BP() uint64
}

// StatusKind classifies a WaitStatus.
type StatusKind uint8

const (
	StatusStopped StatusKind = iota
	StatusExited
	StatusSignaled
)

// WaitStatus is the state change reported by Process.Wait.
type WaitStatus struct {
	Kind StatusKind
	// ExitCode is valid for StatusExited.
	ExitCode int
	// Signal is the stop signal for StatusStopped and the terminating
	// signal for StatusSignaled.
	Signal syscall.Signal
}

// Process is the operating system boundary of the debugger: a child
// process running under a trace facility. The native package implements it
// with ptrace(2).
type Process interface {
	Pid() int
	ReadMemory(data []byte, addr uint64) (int, error)
	WriteMemory(addr uint64, data []byte) (int, error)
	Registers() (Registers, error)
	SetPC(pc uint64) error
	// Continue resumes the process delivering sig, if not zero. It does not
	// wait for the next stop.
	Continue(sig int) error
	// SingleStep executes one instruction delivering sig, if not zero. It
	// does not wait for the resulting stop.
	SingleStep(sig int) error
	// Wait blocks until the process changes state.
	Wait() (WaitStatus, error)
	// Kill terminates the process and reaps it.
	Kill() error
}

// Launcher starts cmd[0] with arguments cmd[1:] under trace, stopped
// before its first instruction.
type Launcher func(cmd []string, wd string) (Process, error)

// State is the lifecycle state of an Inferior.
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateStopped
	StateExited
	StateSignaled
	StateKilled
)

var stateNames = [...]string{"created", "running", "stopped", "exited", "signaled", "killed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Alive returns true if the process has not terminated.
func (s State) Alive() bool {
	return s == StateCreated || s == StateRunning || s == StateStopped
}

// ErrProcessExited indicates that the process has exited or was killed.
type ErrProcessExited struct {
	Pid   int
	State State
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("process %d has %s", pe.Pid, pe.State)
}

// InvalidAddressError represents the result of
// attempting to access an address the target does not map.
type InvalidAddressError struct {
	Address uint64
	Err     error
}

func (iae InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %#x: %v", iae.Address, iae.Err)
}

func (iae InvalidAddressError) Unwrap() error { return iae.Err }

// LaunchConfig describes how to start an Inferior.
type LaunchConfig struct {
	Path       string
	Args       []string
	WorkingDir string
	// PassSignals are delivered to the target without reporting a stop.
	PassSignals []syscall.Signal
}

// Inferior is a traced child process.
type Inferior struct {
	proc  Process
	state State
	pc    uint64

	// pending is the signal to deliver on the next resume.
	pending syscall.Signal
	pass    map[syscall.Signal]bool

	// installed holds the addresses currently patched with a trap in this
	// process.
	installed map[uint64]bool

	log logflags.Logger
}

// Start launches the target under trace control, stopped before its first
// instruction, and installs a trap at every address of bps.
//
// A breakpoint that cannot be installed does not stop the launch: it stays
// unarmed in this process and the problem is returned in warnings, together
// with any recorded byte that no longer matches the program text.
func Start(launch Launcher, cfg LaunchConfig, bps *BreakpointMap) (inf *Inferior, warnings []error, err error) {
	p, err := launch(append([]string{cfg.Path}, cfg.Args...), cfg.WorkingDir)
	if err != nil {
		return nil, nil, err
	}
	inf = newInferior(p, cfg.PassSignals)
	regs, err := p.Registers()
	if err != nil {
		inf.Kill()
		return nil, nil, fmt.Errorf("could not read registers after launch: %w", err)
	}
	inf.pc = regs.PC()
	inf.log.Debugf("launched %s pid %d, stopped at %#x", cfg.Path, p.Pid(), inf.pc)

	return inf, inf.installBreakpoints(bps), nil
}

func newInferior(p Process, pass []syscall.Signal) *Inferior {
	inf := &Inferior{
		proc:      p,
		state:     StateCreated,
		pass:      make(map[syscall.Signal]bool),
		installed: make(map[uint64]bool),
		log:       logflags.ProcLogger().WithField("pid", p.Pid()),
	}
	for _, sig := range pass {
		inf.pass[sig] = true
	}
	return inf
}

func (inf *Inferior) installBreakpoints(bps *BreakpointMap) []error {
	addrs := make([]uint64, 0, bps.Len())
	for addr := range bps.M {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	var warnings []error
	for _, addr := range addrs {
		if err := inf.InstallBreakpoint(bps.M[addr]); err != nil {
			inf.log.Warnf("%v", err)
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// InstallBreakpoint writes the trap instruction at bp.Addr. The replaced
// byte is recorded in bp unless bp already holds a valid recording.
//
// If the recorded byte differs from the one found in memory the trap is
// still installed, the recording is replaced and a *BreakpointMismatchError
// is returned.
func (inf *Inferior) InstallBreakpoint(bp *Breakpoint) error {
	if inf.installed[bp.Addr] {
		return nil
	}
	prev, err := inf.WriteByte(bp.Addr, BreakpointInstruction)
	if err != nil {
		return fmt.Errorf("could not install breakpoint %d at %#x: %w", bp.ID, bp.Addr, err)
	}
	inf.installed[bp.Addr] = true
	inf.log.Debugf("installed breakpoint %d at %#x (original %#02x)", bp.ID, bp.Addr, prev)
	switch {
	case !bp.Captured:
		bp.OriginalData = prev
		bp.Captured = true
	case prev != bp.OriginalData:
		mismatch := &BreakpointMismatchError{Addr: bp.Addr, Recorded: bp.OriginalData, Found: prev}
		bp.OriginalData = prev
		return mismatch
	}
	return nil
}

// Pid returns the process identifier.
func (inf *Inferior) Pid() int {
	return inf.proc.Pid()
}

// State returns the lifecycle state.
func (inf *Inferior) State() State {
	return inf.state
}

// PC returns the instruction address of the last stop.
func (inf *Inferior) PC() uint64 {
	return inf.pc
}

// Installed returns true if a trap is currently patched at addr.
func (inf *Inferior) Installed(addr uint64) bool {
	return inf.installed[addr]
}

func (inf *Inferior) checkAlive() error {
	if !inf.state.Alive() {
		return ErrProcessExited{Pid: inf.Pid(), State: inf.state}
	}
	return nil
}

// Resume continues the inferior until its next reportable stop. If the
// inferior is stopped on an installed breakpoint the breakpoint is stepped
// over first.
func (inf *Inferior) Resume(bps *BreakpointMap) (StopEvent, error) {
	if err := inf.checkAlive(); err != nil {
		return StopEvent{}, err
	}
	if bp, ok := bps.Find(inf.pc); ok && inf.installed[bp.Addr] {
		ev, err := inf.stepOverBreakpoint(bp)
		if err != nil {
			return StopEvent{}, err
		}
		if ev != nil {
			return *ev, nil
		}
	}

	sig := inf.pending
	inf.pending = 0
	for {
		if err := inf.proc.Continue(int(sig)); err != nil {
			return StopEvent{}, fmt.Errorf("could not continue process %d: %w", inf.Pid(), err)
		}
		inf.state = StateRunning
		ws, err := inf.proc.Wait()
		if err != nil {
			return StopEvent{}, fmt.Errorf("waiting for process %d: %w", inf.Pid(), err)
		}
		if ev, terminal := inf.terminated(ws); terminal {
			return ev, nil
		}
		if inf.pass[ws.Signal] {
			if logflags.Proc() {
				inf.log.Debugf("passing %s to the target", SignalName(ws.Signal))
			}
			sig = ws.Signal
			continue
		}
		return inf.stopped(ws.Signal)
	}
}

// terminated updates the state for an exit or fatal signal.
func (inf *Inferior) terminated(ws WaitStatus) (StopEvent, bool) {
	switch ws.Kind {
	case StatusExited:
		inf.state = StateExited
		inf.installed = make(map[uint64]bool)
		inf.log.Debugf("exited with status %d", ws.ExitCode)
		return StopEvent{Reason: StopExited, ExitCode: ws.ExitCode}, true
	case StatusSignaled:
		inf.state = StateSignaled
		inf.installed = make(map[uint64]bool)
		inf.log.Debugf("killed by %s", SignalName(ws.Signal))
		return StopEvent{Reason: StopSignaled, Signal: ws.Signal}, true
	}
	return StopEvent{}, false
}

// stopped classifies a signal-delivery stop. A SIGTRAP immediately after an
// installed trap means the breakpoint was hit: the trap has already
// executed, so the PC is rewound to the breakpoint address.
func (inf *Inferior) stopped(sig syscall.Signal) (StopEvent, error) {
	inf.state = StateStopped
	regs, err := inf.proc.Registers()
	if err != nil {
		return StopEvent{}, fmt.Errorf("could not read registers: %w", err)
	}
	pc := regs.PC()
	switch {
	case sig == syscall.SIGTRAP && inf.installed[pc-1]:
		pc--
		if err := inf.proc.SetPC(pc); err != nil {
			return StopEvent{}, fmt.Errorf("could not rewind PC to %#x: %w", pc, err)
		}
	case sig != syscall.SIGTRAP && sig != syscall.SIGINT:
		inf.pending = sig
	}
	inf.pc = pc
	inf.log.Debugf("stopped by %s at %#x", SignalName(sig), pc)
	return StopEvent{Reason: StopStopped, Signal: sig, PC: pc}, nil
}

// singleStep executes exactly one instruction. Signals reported before the
// instruction completes are held and delivered on the next resume. A non
// nil StopEvent means the process terminated instead.
func (inf *Inferior) singleStep() (*StopEvent, error) {
	for {
		if err := inf.proc.SingleStep(0); err != nil {
			return nil, fmt.Errorf("could not single step process %d: %w", inf.Pid(), err)
		}
		ws, err := inf.proc.Wait()
		if err != nil {
			return nil, fmt.Errorf("waiting for process %d: %w", inf.Pid(), err)
		}
		if ev, terminal := inf.terminated(ws); terminal {
			return &ev, nil
		}
		if ws.Signal == syscall.SIGTRAP {
			inf.state = StateStopped
			return nil, nil
		}
		if ws.Signal != syscall.SIGINT {
			inf.pending = ws.Signal
		}
	}
}

// WriteByte stores value at addr and returns the byte it replaced.
func (inf *Inferior) WriteByte(addr uint64, value byte) (byte, error) {
	if err := inf.checkAlive(); err != nil {
		return 0, err
	}
	var prev [1]byte
	if _, err := inf.proc.ReadMemory(prev[:], addr); err != nil {
		return 0, InvalidAddressError{Address: addr, Err: err}
	}
	if _, err := inf.proc.WriteMemory(addr, []byte{value}); err != nil {
		return 0, InvalidAddressError{Address: addr, Err: err}
	}
	return prev[0], nil
}

// ReadWord reads the little endian 64 bit word at addr.
func (inf *Inferior) ReadWord(addr uint64) (uint64, error) {
	if err := inf.checkAlive(); err != nil {
		return 0, err
	}
	var buf [8]byte
	if _, err := inf.proc.ReadMemory(buf[:], addr); err != nil {
		return 0, InvalidAddressError{Address: addr, Err: err}
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadMemory reads len(data) bytes at addr, showing the original
// instructions in place of the installed traps.
func (inf *Inferior) ReadMemory(data []byte, addr uint64, bps *BreakpointMap) (int, error) {
	if err := inf.checkAlive(); err != nil {
		return 0, err
	}
	n, err := inf.proc.ReadMemory(data, addr)
	if err != nil {
		return n, InvalidAddressError{Address: addr, Err: err}
	}
	for bpaddr := range inf.installed {
		if bpaddr >= addr && bpaddr < addr+uint64(n) {
			if bp, ok := bps.Find(bpaddr); ok {
				data[bpaddr-addr] = bp.OriginalData
			}
		}
	}
	return n, nil
}

// Registers returns the registers of the stopped inferior.
func (inf *Inferior) Registers() (Registers, error) {
	if err := inf.checkAlive(); err != nil {
		return nil, err
	}
	return inf.proc.Registers()
}

// Kill terminates and reaps the inferior. It returns the process
// identifier even when the process had already exited.
func (inf *Inferior) Kill() int {
	pid := inf.Pid()
	if !inf.state.Alive() {
		return pid
	}
	if err := inf.proc.Kill(); err != nil && !errors.Is(err, syscall.ESRCH) {
		inf.log.Errorf("could not kill process: %v", err)
	}
	inf.state = StateKilled
	inf.installed = make(map[uint64]bool)
	return pid
}
