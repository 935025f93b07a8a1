package proc

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// StopReason classifies a StopEvent.
type StopReason uint8

const (
	// StopStopped means the process is stopped on a signal and can be
	// resumed.
	StopStopped StopReason = iota
	// StopExited means the process terminated normally.
	StopExited
	// StopSignaled means the process was terminated by a signal.
	StopSignaled
)

// StopEvent is the outcome of resuming an inferior.
type StopEvent struct {
	Reason   StopReason
	ExitCode int
	Signal   syscall.Signal
	PC       uint64
}

func (ev StopEvent) String() string {
	switch ev.Reason {
	case StopExited:
		return fmt.Sprintf("Exited(%d)", ev.ExitCode)
	case StopSignaled:
		return fmt.Sprintf("Signaled(%s)", SignalName(ev.Signal))
	default:
		return fmt.Sprintf("Stopped(%s, %#x)", SignalName(ev.Signal), ev.PC)
	}
}

// Terminal returns true if the process no longer exists after the event.
func (ev StopEvent) Terminal() bool {
	return ev.Reason != StopStopped
}

// NoProcessError reports a command that needs a live inferior issued while
// none exists.
type NoProcessError struct {
	Op string
}

func (e NoProcessError) Error() string {
	return fmt.Sprintf("Nothing to %s: the program is not being run.", e.Op)
}

// SignalName returns the conventional name of sig, for example SIGTRAP.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// ParseSignal accepts a signal name with or without the SIG prefix, in any
// case.
func ParseSignal(name string) (syscall.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig := unix.SignalNum(n)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}

// ParseSignals converts a list of signal names, as found in the
// configuration file.
func ParseSignals(names []string) ([]syscall.Signal, error) {
	r := make([]syscall.Signal, 0, len(names))
	for _, name := range names {
		sig, err := ParseSignal(name)
		if err != nil {
			return nil, err
		}
		r = append(r, sig)
	}
	return r, nil
}
