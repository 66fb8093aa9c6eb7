package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/internal/cliutil"
	"github.com/nonibytes/edgerelay/pkg/edgerelay"
)

func RunState(g cliopt.GlobalOptions, argv []string) int {
	fs := pflag.NewFlagSet("state", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var device, format string
	fs.StringVarP(&device, "device", "d", "", "only rows of this device ip")
	fs.StringVar(&format, "format", "pretty", "pretty|json")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	cfg, _, closer, err := cliutil.Setup(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()

	ctx := context.Background()
	store, err := edgerelay.OpenStore(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer store.Close()

	rows, err := store.Rows(ctx, device)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if device != "" && len(rows) == 0 {
		fmt.Fprintln(os.Stderr, edgerelay.NotFoundError("stored values for device "+device))
		return 1
	}
	if cliutil.ParseOutputFormat(format) == cliutil.FormatJSON {
		cliutil.PrintJSON(os.Stdout, rows)
		return 0
	}
	for _, r := range rows {
		fmt.Fprintf(os.Stdout, "%s %s/%s/%s/%s %s = %s\n", r.IP, r.NodeType, r.Node, r.Mod, r.Point, r.Key, r.Value)
	}
	return 0
}
