// Package native implements the process control boundary of pkg/proc with
// ptrace(2).
package native

import (
	"runtime"

	"github.com/deet-dbg/deet/pkg/proc"
)

// nativeProcess represents all of the information the debugger
// is holding onto regarding the process we are debugging.
type nativeProcess struct {
	pid int

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	exited bool
}

// newProcess returns an initialized nativeProcess struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func newProcess(pid int) *nativeProcess {
	dbp := &nativeProcess{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Pid returns the process identifier.
func (dbp *nativeProcess) Pid() int {
	return dbp.pid
}

func (dbp *nativeProcess) checkExited() error {
	if dbp.exited {
		return proc.ErrProcessExited{Pid: dbp.pid, State: proc.StateExited}
	}
	return nil
}

func (dbp *nativeProcess) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_TRACEME to come from the thread that started the tracee.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *nativeProcess) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// postExit stops the ptrace goroutine. The process must have been reaped.
func (dbp *nativeProcess) postExit() {
	if dbp.exited {
		return
	}
	dbp.exited = true
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
}
