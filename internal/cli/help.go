package cli

import (
	"fmt"
	"io"
)

func PrintRootHelp(w io.Writer) {
	fmt.Fprintln(w, `edgerelay: building-controller collector with change-of-value reporting

USAGE
  edgerelay [global flags] <command> [args]

GLOBAL FLAGS
  -c, --config <file>        yaml, json or jsonc configuration
  --log-level debug|info|warn|error
  --backend sqlite|postgres
  --sqlite-path <file.db>
  --pg-dsn <dsn>

COMMANDS
  run                        poll on the configured cadences until interrupted
  once [--full|--restart]    run a single cycle and print its report
  reset                      forget every stored value
  state [--device ip] [--format pretty|json]
  flatten -f <file|->        show the rows a records file flattens to

Run "edgerelay <command> --help" for command flags.`)
}
