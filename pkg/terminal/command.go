// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for deet terminal process.
type Commands struct {
	cmds   []command
	client Client
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands(client Client) *Commands {
	c := &Commands{client: client}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"run", "r"}, cmdFn: run, helpMsg: `Starts the program.

	run [arguments...]

Arguments are split like a shell would split them. A program that is
already running is killed first. Breakpoints are installed before the
program executes its first instruction.`},
		{aliases: []string{"continue", "c", "cont"}, cmdFn: cont, helpMsg: `Run until breakpoint, signal or program termination.

	continue`},
		{aliases: []string{"break", "b"}, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <location>

The location is one of:

	*<address>	a hexadecimal instruction address, 0x prefix optional
	<line>		a line in the file of the main function
	<file>:<line>	a line in the given file
	<function>	the entry of a function, with or without its package

Breakpoints set before "run" are installed when the program starts.`},
		{aliases: []string{"breakpoints", "bp"}, cmdFn: breakpoints, helpMsg: `Print out info for active breakpoints.

	breakpoints`},
		{aliases: []string{"backtrace", "bt", "back"}, cmdFn: stacktrace, helpMsg: `Print stack trace.

	backtrace

Frames are found by following the frame pointer chain, innermost first.`},
		{aliases: []string{"quit", "q", "exit"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

	quit

The program being debugged is killed.`},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// An empty command does nothing.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// isBreak returns true if cmdstr names the break command.
func (c *Commands) isBreak(cmdstr string) bool {
	for _, v := range c.cmds {
		if v.aliases[0] == "break" {
			return v.match(cmdstr)
		}
	}
	return false
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// parseArgv splits the arguments of the run command.
func parseArgv(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", args)
	}
	return v[0], nil
}

func run(t *Term, args string) error {
	cmdArgs, err := parseArgv(args)
	if err != nil {
		return err
	}
	t.print(t.client.Run(cmdArgs))
	return nil
}

func cont(t *Term, args string) error {
	t.print(t.client.Continue())
	return nil
}

func breakpoint(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	t.print(t.client.Break(args))
	return nil
}

func breakpoints(t *Term, args string) error {
	t.print(t.client.Breakpoints())
	return nil
}

func stacktrace(t *Term, args string) error {
	t.print(t.client.Backtrace())
	return nil
}

// ExitRequestError is returned when the user
// exits deet.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}
