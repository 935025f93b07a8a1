package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deet-dbg/deet/cmd/deet/cmds/helphelpers"
	"github.com/deet-dbg/deet/pkg/config"
	"github.com/deet-dbg/deet/pkg/logflags"
	"github.com/deet-dbg/deet/pkg/symbols"
	"github.com/deet-dbg/deet/pkg/terminal"
	"github.com/deet-dbg/deet/pkg/version"
	"github.com/deet-dbg/deet/service/debugger"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// workingDir is the working directory for running the program.
	workingDir string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command
)

const deetCommandLongDesc = `Deet is a source level debugger for native Linux programs.

Deet starts the program under ptrace and lets you stop it at breakpoints set
on functions, source lines or addresses, continue it, and look at its call
stack. The program must carry DWARF debug information and frame pointers.

Arguments for the program are given to the "run" command at the deet prompt.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:   "deet <target>",
		Short: "Deet is a debugger for native Linux programs.",
		Long:  deetCommandLongDesc,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(args[0], config.LoadConfig()))
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'deet help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'deet help log').")
	rootCommand.PersistentFlags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Deet Debugger\n%s\n", version.DeetVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	}
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	debugger	Log the commands of the session and their results
	proc		Log process control: launch, stops, signals, memory writes
	symbols		Log debug information loading
	terminal	Log terminal events

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	return rootCommand
}

func execute(target string, conf *config.Config) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()
	if logflags.Debugger() {
		logflags.DebuggerLogger().Infof("deet %s\n%s", version.DeetVersion, version.BuildInfo())
	}

	tbl, err := loadSymbols(os.Stderr, target)
	if err != nil {
		return 1
	}

	d, err := debugger.New(&debugger.Config{
		Target:     target,
		WorkingDir: workingDir,
		Conf:       conf,
		Color:      !terminal.Dumb(),
	}, tbl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	status, err := terminal.New(d, conf).Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}

// loadSymbols reads the debug information of target, reporting failures to
// w with a message that tells a missing file apart from a bad one.
func loadSymbols(w io.Writer, target string) (*symbols.Table, error) {
	tbl, err := symbols.Load(target)
	if err == nil {
		return tbl, nil
	}
	var openErr *symbols.OpenError
	var formatErr *symbols.FormatError
	switch {
	case errors.As(err, &openErr):
		fmt.Fprintf(w, "Could not open file %s\n", target)
	case errors.As(err, &formatErr):
		fmt.Fprintf(w, "Could not load debugging symbols from %s: %v\n", target, formatErr.Err)
	default:
		fmt.Fprintf(w, "Could not load %s: %v\n", target, err)
	}
	return nil, err
}
