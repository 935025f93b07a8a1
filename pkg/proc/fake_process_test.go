package proc

import (
	"errors"
	"syscall"
)

type fakeRegisters struct {
	pc, sp, bp uint64
}

func (r fakeRegisters) PC() uint64 { return r.pc }
func (r fakeRegisters) SP() uint64 { return r.sp }
func (r fakeRegisters) BP() uint64 { return r.bp }

// fakeStop is what the fake reports after the next Continue. A non zero
// trapAt simulates running into the trap byte at that address.
type fakeStop struct {
	ws     WaitStatus
	trapAt uint64
}

var errUnmapped = errors.New("unmapped")

// fakeProcess is an in-memory traced process. Every instruction is one
// byte long; single stepping advances the PC by one.
type fakeProcess struct {
	pid  int
	mem  map[uint64]byte
	regs fakeRegisters

	stops []fakeStop
	// stepSignals are reported, in order, instead of completing a single
	// step.
	stepSignals []syscall.Signal
	// stepExit makes the next single step terminate the process.
	stepExit *WaitStatus
	// onStep runs after a single step executes.
	onStep func(f *fakeProcess)
	// failRegisters makes that many Registers calls fail.
	failRegisters int

	pending    WaitStatus
	contSigs   []int
	stepSigs   []int
	executed   []byte
	trapsSeen  []bool
	killCalls  int
	terminated bool
}

func newFakeProcess(pc uint64, mem map[uint64]byte) *fakeProcess {
	return &fakeProcess{pid: 4242, mem: mem, regs: fakeRegisters{pc: pc, sp: 0x7ff000, bp: 0x7ff100}}
}

func (f *fakeProcess) launcher() Launcher {
	return func(cmd []string, wd string) (Process, error) { return f, nil }
}

func (f *fakeProcess) Pid() int { return f.pid }

func (f *fakeProcess) ReadMemory(data []byte, addr uint64) (int, error) {
	for i := range data {
		b, ok := f.mem[addr+uint64(i)]
		if !ok {
			return i, errUnmapped
		}
		data[i] = b
	}
	return len(data), nil
}

func (f *fakeProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	for i, b := range data {
		if _, ok := f.mem[addr+uint64(i)]; !ok {
			return i, errUnmapped
		}
		f.mem[addr+uint64(i)] = b
	}
	return len(data), nil
}

func (f *fakeProcess) Registers() (Registers, error) {
	if f.terminated {
		return nil, errors.New("no such process")
	}
	if f.failRegisters > 0 {
		f.failRegisters--
		return nil, syscall.EIO
	}
	return f.regs, nil
}

func (f *fakeProcess) SetPC(pc uint64) error {
	f.regs.pc = pc
	return nil
}

func (f *fakeProcess) Continue(sig int) error {
	f.contSigs = append(f.contSigs, sig)
	if len(f.stops) == 0 {
		f.pending = WaitStatus{Kind: StatusExited}
		return nil
	}
	stop := f.stops[0]
	f.stops = f.stops[1:]
	if stop.trapAt != 0 {
		f.trapsSeen = append(f.trapsSeen, f.mem[stop.trapAt] == BreakpointInstruction)
		f.regs.pc = stop.trapAt + 1
	}
	f.pending = stop.ws
	return nil
}

func (f *fakeProcess) SingleStep(sig int) error {
	f.stepSigs = append(f.stepSigs, sig)
	if len(f.stepSignals) > 0 {
		f.pending = WaitStatus{Kind: StatusStopped, Signal: f.stepSignals[0]}
		f.stepSignals = f.stepSignals[1:]
		return nil
	}
	if f.stepExit != nil {
		f.pending = *f.stepExit
		return nil
	}
	f.executed = append(f.executed, f.mem[f.regs.pc])
	f.regs.pc++
	if f.onStep != nil {
		f.onStep(f)
	}
	f.pending = WaitStatus{Kind: StatusStopped, Signal: syscall.SIGTRAP}
	return nil
}

func (f *fakeProcess) Wait() (WaitStatus, error) {
	if f.pending.Kind != StatusStopped {
		f.terminated = true
	}
	return f.pending, nil
}

func (f *fakeProcess) Kill() error {
	f.killCalls++
	f.terminated = true
	return nil
}

func trapStop(addr uint64) fakeStop {
	return fakeStop{ws: WaitStatus{Kind: StatusStopped, Signal: syscall.SIGTRAP}, trapAt: addr}
}

func signalStop(sig syscall.Signal) fakeStop {
	return fakeStop{ws: WaitStatus{Kind: StatusStopped, Signal: sig}}
}

func exitStop(code int) fakeStop {
	return fakeStop{ws: WaitStatus{Kind: StatusExited, ExitCode: code}}
}

// textSegment returns a fake mapping of n bytes at base, byte i holding
// 0x10+i.
func textSegment(base uint64, n int) map[uint64]byte {
	mem := make(map[uint64]byte, n)
	for i := 0; i < n; i++ {
		mem[base+uint64(i)] = byte(0x10 + i)
	}
	return mem
}
