package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/nonibytes/edgerelay/internal/cli/commands"
	"github.com/nonibytes/edgerelay/internal/cliopt"
)

// Execute runs the CLI and returns an exit code.
func Execute(argv []string) int {
	globalFS := pflag.NewFlagSet("edgerelay", pflag.ContinueOnError)
	globalFS.SetOutput(os.Stderr)
	globalFS.SetInterspersed(false)
	globalFS.Usage = func() { PrintRootHelp(os.Stderr) }
	g := cliopt.DefaultGlobalOptions()
	cliopt.BindGlobalFlags(globalFS, &g)

	if err := globalFS.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		// pflag already printed the error
		return 2
	}

	args := globalFS.Args()
	if len(args) == 0 {
		PrintRootHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	rest := args[1:]

	switch verb {
	case "--help", "-h", "help":
		PrintRootHelp(os.Stdout)
		return 0
	case "run":
		return commands.RunRun(g, rest)
	case "once":
		return commands.RunOnce(g, rest)
	case "reset":
		return commands.RunReset(g, rest)
	case "state":
		return commands.RunState(g, rest)
	case "flatten":
		return commands.RunFlatten(g, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", verb)
		PrintRootHelp(os.Stderr)
		return 2
	}
}
