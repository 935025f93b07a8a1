//go:build linux && amd64

package native

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/deet-dbg/deet/pkg/logflags"
	"github.com/deet-dbg/deet/pkg/proc"
)

// Launch creates and begins debugging a new process. First entry in
// `cmd` is the program to run, and then rest are the arguments
// to be supplied to that process. `wd` is working directory of the program.
//
// The process shares the debugger's standard streams and process group, so
// an interrupt typed at the terminal reaches it as a SIGINT stop. It is
// returned stopped on the trap raised by execve.
func Launch(cmd []string, wd string) (proc.Process, error) {
	if len(cmd) == 0 {
		return nil, errors.New("no command to launch")
	}
	var (
		process *exec.Cmd
		err     error
	)

	dbp := newProcess(0)
	dbp.execPtraceFunc(func() {
		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		process.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
		if wd != "" {
			process.Dir = wd
		}
		err = process.Start()
	})
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	dbp.pid = process.Process.Pid

	ws, err := dbp.Wait()
	if err != nil {
		dbp.Kill()
		return nil, fmt.Errorf("waiting for target execve failed: %w", err)
	}
	if ws.Kind != proc.StatusStopped || ws.Signal != syscall.SIGTRAP {
		dbp.postExit()
		return nil, fmt.Errorf("unexpected status after execve: %+v", ws)
	}

	// The target must not outlive the debugger.
	dbp.execPtraceFunc(func() { err = sys.PtraceSetOptions(dbp.pid, sys.PTRACE_O_EXITKILL) })
	if err != nil {
		dbp.Kill()
		return nil, fmt.Errorf("could not set ptrace options: %w", err)
	}
	logflags.ProcLogger().Debugf("launched %v as pid %d", cmd, dbp.pid)
	return dbp, nil
}

// Wait blocks until the process stops or terminates. Termination reaps the
// process and shuts down the ptrace goroutine.
func (dbp *nativeProcess) Wait() (proc.WaitStatus, error) {
	if err := dbp.checkExited(); err != nil {
		return proc.WaitStatus{}, err
	}
	var s sys.WaitStatus
	for {
		_, err := sys.Wait4(dbp.pid, &s, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			return proc.WaitStatus{}, err
		}
		break
	}
	switch {
	case s.Exited():
		dbp.postExit()
		return proc.WaitStatus{Kind: proc.StatusExited, ExitCode: s.ExitStatus()}, nil
	case s.Signaled():
		dbp.postExit()
		return proc.WaitStatus{Kind: proc.StatusSignaled, Signal: s.Signal()}, nil
	case s.Stopped():
		return proc.WaitStatus{Kind: proc.StatusStopped, Signal: s.StopSignal()}, nil
	}
	return proc.WaitStatus{}, fmt.Errorf("unexpected wait status %#x", uint32(s))
}

// Kill sends SIGKILL and reaps the process.
func (dbp *nativeProcess) Kill() error {
	if dbp.exited {
		return nil
	}
	if err := sys.Kill(dbp.pid, sys.SIGKILL); err != nil {
		return err
	}
	for !dbp.exited {
		if _, err := dbp.Wait(); err != nil {
			if err == sys.ECHILD {
				dbp.postExit()
				return nil
			}
			return err
		}
	}
	return nil
}

// Continue resumes the process, delivering sig if it is not zero.
func (dbp *nativeProcess) Continue(sig int) (err error) {
	if err := dbp.checkExited(); err != nil {
		return err
	}
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.pid, sig) })
	return
}

// SingleStep executes one instruction, delivering sig if it is not zero.
func (dbp *nativeProcess) SingleStep(sig int) (err error) {
	if err := dbp.checkExited(); err != nil {
		return err
	}
	dbp.execPtraceFunc(func() { err = ptraceSingleStep(dbp.pid, sig) })
	return
}

// ReadMemory reads len(data) bytes of the target at addr.
func (dbp *nativeProcess) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if err := dbp.checkExited(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() { n, err = sys.PtracePeekData(dbp.pid, uintptr(addr), data) })
	return
}

// WriteMemory writes data into the target at addr. Text pages are written
// through ptrace, which ignores page protections.
func (dbp *nativeProcess) WriteMemory(addr uint64, data []byte) (n int, err error) {
	if err := dbp.checkExited(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() { n, err = sys.PtracePokeData(dbp.pid, uintptr(addr), data) })
	return
}
