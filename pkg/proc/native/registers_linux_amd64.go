package native

import (
	sys "golang.org/x/sys/unix"

	"github.com/deet-dbg/deet/pkg/proc"
)

// amd64Registers is the general purpose register set of a stopped thread.
type amd64Registers struct {
	Regs sys.PtraceRegs
}

func (r *amd64Registers) PC() uint64 { return r.Regs.Rip }
func (r *amd64Registers) SP() uint64 { return r.Regs.Rsp }
func (r *amd64Registers) BP() uint64 { return r.Regs.Rbp }

func (dbp *nativeProcess) registers() (*amd64Registers, error) {
	if err := dbp.checkExited(); err != nil {
		return nil, err
	}
	var (
		r   amd64Registers
		err error
	)
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.pid, &r.Regs) })
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Registers returns the register set of the stopped process.
func (dbp *nativeProcess) Registers() (proc.Registers, error) {
	r, err := dbp.registers()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SetPC sets RIP to the value specified by 'pc'.
func (dbp *nativeProcess) SetPC(pc uint64) error {
	r, err := dbp.registers()
	if err != nil {
		return err
	}
	r.Regs.Rip = pc
	dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(dbp.pid, &r.Regs) })
	return err
}
