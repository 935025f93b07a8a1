package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"github.com/deet-dbg/deet/pkg/config"
	"github.com/deet-dbg/deet/pkg/logflags"
)

const historyFile string = "deet_history"

const (
	ansiBlack   = 30
	ansiBlue    = 34
	ansiWhite   = 37
	ansiBrBlack = 90
	ansiBrWhite = 97
)

// Client is the debugging session driven by the terminal. Each method
// runs one command and returns the text to print.
type Client interface {
	Run(args []string) string
	Continue() string
	Break(spec string) string
	Backtrace() string
	Breakpoints() string
	Quit() string
	Functions() []string
}

// Term represents the terminal running deet.
type Term struct {
	client Client
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer

	// functions indexes the function names of the target for completion.
	functions *trie.Trie
}

// Dumb returns true if the output should not contain escape sequences:
// stdout is not a terminal or TERM says it cannot handle them.
func Dumb() bool {
	return strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
}

// New returns a new Term.
func New(client Client, conf *config.Config) *Term {
	if conf == nil {
		conf = &config.Config{}
	}
	cmds := DebugCommands(client)
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	dumb := Dumb()
	var w io.Writer = os.Stdout
	if !dumb {
		w = colorable.NewColorableStdout()
	}

	if (conf.SourceListLineColor > ansiWhite &&
		conf.SourceListLineColor < ansiBrBlack) ||
		conf.SourceListLineColor < ansiBlack ||
		conf.SourceListLineColor > ansiBrWhite {
		conf.SourceListLineColor = ansiBlue
	}

	return &Term{
		client:    client,
		conf:      conf,
		prompt:    "(deet) ",
		line:      liner.NewLiner(),
		cmds:      cmds,
		dumb:      dumb,
		stdout:    w,
		functions: functionIndex(client.Functions()),
	}
}

// functionIndex builds the completion trie. Functions are reachable by
// their full name and by their name without the package path.
func functionIndex(names []string) *trie.Trie {
	t := trie.New()
	for _, name := range names {
		t.Add(name, name)
		if dot := strings.LastIndex(name, "."); dot >= 0 && dot < len(name)-1 {
			if _, exists := t.Find(name[dot+1:]); !exists {
				t.Add(name[dot+1:], name)
			}
		}
	}
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

// sigintGuard keeps an interrupt from terminating the debugger. The target
// shares our process group, so it receives the same SIGINT and the
// debugger reports it as a stop.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		logflags.TerminalLogger().Debug("received SIGINT")
	}
}

// Run begins running deet in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println(`Type "quit" to exit`)
				continue
			}
			if err == io.EOF {
				fmt.Println("quit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}
		if cmdstr != "" {
			if err := t.saveHistory(); err != nil {
				logflags.TerminalLogger().Debugf("could not save history: %v", err)
			}
		}

		if logflags.Terminal() {
			logflags.TerminalLogger().Debugf("command %q", cmdstr)
		}
		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// print writes the result of a command.
func (t *Term) print(out string) {
	if out == "" {
		return
	}
	fmt.Fprintln(t.stdout, out)
}

// complete completes command names and, after a break command, function
// names.
func (t *Term) complete(line string) (c []string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 1 {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		sort.Strings(c)
		return c
	}
	if !t.cmds.isBreak(fields[0]) || t.functions == nil {
		return nil
	}
	prefix := strings.TrimLeft(fields[1], " ")
	for _, key := range t.functions.PrefixSearch(prefix) {
		c = append(c, fields[0]+" "+key)
	}
	sort.Strings(c)
	return c
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

// saveHistory writes the command history to the history file, replacing
// its contents.
func (t *Term) saveHistory() error {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = t.line.WriteHistory(f)
	return err
}

// handleExit saves the history and kills the target.
func (t *Term) handleExit() (int, error) {
	if t.line != nil {
		if err := t.saveHistory(); err != nil {
			fmt.Println("Error saving history file:", err)
		}
	}

	t.print(t.client.Quit())
	return 0, nil
}
