package debugger

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/deet-dbg/deet/pkg/config"
	"github.com/deet-dbg/deet/pkg/logflags"
	"github.com/deet-dbg/deet/pkg/proc"
	"github.com/deet-dbg/deet/pkg/proc/native"
	"github.com/deet-dbg/deet/pkg/source"
	"github.com/deet-dbg/deet/pkg/symbols"
)

// Symbols is the symbol table of the target, see symbols.Table.
type Symbols interface {
	PCToLocation(pc uint64) (*symbols.Location, bool)
	PCToFunc(pc uint64) *symbols.Function
	FunctionEntry(name string) (uint64, error)
	LineToPC(file string, line int) (uint64, error)
	EntryFunction() string
	Functions() []string
}

// Debugger service.
//
// Debugger owns the debugging session: the symbol table of the target, the
// breakpoint table and, between a run and the end of that process, the
// inferior. There is at most one inferior at any time. Each method
// implements one command and returns the text to show to the user;
// failures are reported in that text and never end the session.
type Debugger struct {
	config *Config
	target string

	syms     Symbols
	bps      *proc.BreakpointMap
	inferior *proc.Inferior

	pass    []syscall.Signal
	sources *source.Cache

	log logflags.Logger
}

// Config provides the configuration to start a Debugger.
type Config struct {
	// Target is the path of the executable to debug.
	Target string

	// WorkingDir is working directory of the new process.
	WorkingDir string

	// Launcher starts the target. Defaults to native.Launch.
	Launcher proc.Launcher

	// Conf is the user configuration. A nil value selects the defaults.
	Conf *config.Config

	// Color enables ANSI colouring of source lines.
	Color bool
}

// New creates a new Debugger for the target described by cfg, whose
// debug information was loaded into syms.
func New(cfg *Config, syms Symbols) (*Debugger, error) {
	if cfg.Launcher == nil {
		cfg.Launcher = native.Launch
	}
	target, err := filepath.Abs(cfg.Target)
	if err != nil {
		return nil, err
	}
	pass, err := proc.ParseSignals(cfg.Conf.PassSignalNames())
	if err != nil {
		return nil, fmt.Errorf("invalid pass-signals configuration: %w", err)
	}
	d := &Debugger{
		config:  cfg,
		target:  target,
		syms:    syms,
		bps:     proc.NewBreakpointMap(),
		pass:    pass,
		sources: source.New(cfg.Conf.SourceCache()),
		log:     logflags.DebuggerLogger(),
	}
	d.log.Debugf("debugging %s, passing signals %v", target, cfg.Conf.PassSignalNames())
	return d, nil
}

// Running returns true if there is a live inferior.
func (d *Debugger) Running() bool {
	return d.inferior != nil
}

// Pid returns the process identifier of the live inferior, or 0.
func (d *Debugger) Pid() int {
	if d.inferior == nil {
		return 0
	}
	return d.inferior.Pid()
}

// Functions returns the names of every function of the target.
func (d *Debugger) Functions() []string {
	return d.syms.Functions()
}

// Run starts the target with args and lets it run to its first stop. A
// live inferior is killed first.
func (d *Debugger) Run(args []string) string {
	var b strings.Builder
	if msg := d.kill(); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}

	d.log.WithFields(logflags.Fields{"target": d.target, "args": args}).Info("launching")
	inf, warnings, err := proc.Start(d.config.Launcher, proc.LaunchConfig{
		Path:        d.target,
		Args:        args,
		WorkingDir:  d.config.WorkingDir,
		PassSignals: d.pass,
	}, d.bps)
	if err != nil {
		d.log.WithError(err).Errorf("could not start %s", d.target)
		fmt.Fprintf(&b, "Error starting subprocess: %v", err)
		return b.String()
	}
	d.inferior = inf
	for _, w := range warnings {
		fmt.Fprintf(&b, "Warning: %v\n", w)
	}
	b.WriteString(d.resume())
	return b.String()
}

// Continue resumes the stopped inferior.
func (d *Debugger) Continue() string {
	if d.inferior == nil {
		return proc.NoProcessError{Op: "continue"}.Error()
	}
	return d.resume()
}

func (d *Debugger) resume() string {
	ev, err := d.inferior.Resume(d.bps)
	if err != nil {
		var exited proc.ErrProcessExited
		if errors.As(err, &exited) {
			d.inferior = nil
		}
		d.log.WithError(err).Error("resume failed")
		return fmt.Sprintf("Error: %v", err)
	}
	if ev.Terminal() {
		d.inferior = nil
	}
	return d.describeStop(ev)
}

func (d *Debugger) describeStop(ev proc.StopEvent) string {
	switch ev.Reason {
	case proc.StopExited:
		return fmt.Sprintf("Child exited (status %d)", ev.ExitCode)
	case proc.StopSignaled:
		return fmt.Sprintf("Child exited due to signal %s", proc.SignalName(ev.Signal))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Child stopped (signal %s)\n", proc.SignalName(ev.Signal))
	loc, ok := d.syms.PCToLocation(ev.PC)
	if !ok {
		loc = &symbols.Location{PC: ev.PC}
	}
	fmt.Fprintf(&b, "Stopped at %s", loc)
	if line := d.sourceLine(loc); line != "" {
		b.WriteString("\n")
		b.WriteString(line)
	}
	if d.config.Conf != nil && d.config.Conf.ShowDisassembly {
		inst, err := proc.DisassembleAt(d.inferior, d.bps, ev.PC)
		if err != nil {
			d.log.Warnf("could not disassemble at %#x: %v", ev.PC, err)
		} else {
			b.WriteString("\n")
			b.WriteString(inst.String())
		}
	}
	return b.String()
}

// sourceLine returns the text of the line at loc, or an empty string when
// the source file is not available.
func (d *Debugger) sourceLine(loc *symbols.Location) string {
	if !d.config.Conf.SourceEnabled() || loc.File == "" {
		return ""
	}
	text, err := d.sources.Line(loc.File, loc.Line)
	if err != nil {
		d.log.Debugf("no source for %s:%d: %v", loc.File, loc.Line, err)
		return ""
	}
	if d.config.Color {
		color := 34
		if d.config.Conf != nil && d.config.Conf.SourceListLineColor != 0 {
			color = d.config.Conf.SourceListLineColor
		}
		return fmt.Sprintf("\x1b[%dm%d\x1b[0m:\t%s", color, loc.Line, text)
	}
	return fmt.Sprintf("%d:\t%s", loc.Line, text)
}

// Break sets a breakpoint at the location described by spec. The
// breakpoint is installed right away into a live inferior, otherwise at the
// next run.
func (d *Debugger) Break(spec string) string {
	addr, err := d.resolve(spec)
	if err != nil {
		return fmt.Sprintf("Invalid location %s: %v", spec, err)
	}
	if existing, ok := d.bps.Find(addr); ok {
		return fmt.Sprintf("Breakpoint %d already set at %#x", existing.ID, addr)
	}
	if d.inferior != nil {
		// Read the address before recording it so that an unmapped one does not
		// end up in the table.
		var buf [1]byte
		if _, err := d.inferior.ReadMemory(buf[:], addr, d.bps); err != nil {
			return fmt.Sprintf("Could not set breakpoint at %#x: %v", addr, err)
		}
	}

	bp, err := d.bps.Set(addr)
	if err != nil {
		return err.Error()
	}
	if loc, ok := d.syms.PCToLocation(addr); ok {
		bp.FunctionName, bp.File, bp.Line = loc.Function, loc.File, loc.Line
	}
	if d.inferior != nil {
		if err := d.inferior.InstallBreakpoint(bp); err != nil {
			d.log.Errorf("installing breakpoint %d: %v", bp.ID, err)
			return fmt.Sprintf("Set breakpoint %d at %#x (not installed: %v)", bp.ID, addr, err)
		}
	}
	d.log.Debugf("breakpoint %d at %#x from %q", bp.ID, addr, spec)
	return fmt.Sprintf("Set breakpoint %d at %#x", bp.ID, addr)
}

func (d *Debugger) resolve(spec string) (uint64, error) {
	loc, err := parseLocationSpec(spec)
	if err != nil {
		return 0, err
	}
	return loc.Find(d.syms)
}

// Breakpoints lists the breakpoint table in creation order.
func (d *Debugger) Breakpoints() string {
	if d.bps.Len() == 0 {
		return "No breakpoints set."
	}
	bps := d.bps.Sorted()
	lines := make([]string, len(bps))
	for i, bp := range bps {
		lines[i] = bp.String()
	}
	return strings.Join(lines, "\n")
}

// Backtrace shows the call stack of the stopped inferior, innermost frame
// first.
func (d *Debugger) Backtrace() string {
	if d.inferior == nil {
		return proc.NoProcessError{Op: "show"}.Error()
	}
	frames, err := proc.Stacktrace(d.inferior, d.syms, d.config.Conf.BacktraceDepth())
	lines := make([]string, 0, len(frames)+1)
	for _, frame := range frames {
		lines = append(lines, frame.String())
	}
	if err != nil {
		d.log.Warnf("backtrace stopped early: %v", err)
		lines = append(lines, fmt.Sprintf("(backtrace incomplete: %v)", err))
	}
	return strings.Join(lines, "\n")
}

// Quit ends the session, killing the live inferior.
func (d *Debugger) Quit() string {
	return d.kill()
}

// kill terminates the live inferior and returns the message reporting it.
func (d *Debugger) kill() string {
	if d.inferior == nil {
		return ""
	}
	pid := d.inferior.Kill()
	d.inferior = nil
	d.log.Infof("killed pid %d", pid)
	return fmt.Sprintf("Killing running inferior (pid %d)", pid)
}
