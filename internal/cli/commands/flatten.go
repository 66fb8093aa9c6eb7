package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nonibytes/edgerelay/edgerelay/flatten"
	"github.com/nonibytes/edgerelay/edgerelay/record"
	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/internal/cliutil"
)

// RunFlatten needs no config or store; it only shows what a records file
// turns into.
func RunFlatten(_ cliopt.GlobalOptions, argv []string) int {
	fs := pflag.NewFlagSet("flatten", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var file, device, format string
	fs.StringVarP(&file, "file", "f", "", "records file, - for stdin")
	fs.StringVar(&device, "device", "", "device ip for records without one")
	fs.StringVar(&format, "format", "pretty", "pretty|json")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if file == "" {
		fmt.Fprintln(os.Stderr, "missing --file")
		return 2
	}

	var in io.Reader = os.Stdin
	if file != "-" {
		fh, err := os.Open(file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer fh.Close()
		in = fh
	}
	bodies, err := record.DecodeRecords(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	status := 0
	var rows []record.Row
	for i, b := range bodies {
		fr, err := flatten.Flatten(record.RawRecord{Device: device, Body: b})
		if err != nil {
			fmt.Fprintf(os.Stderr, "record %d: %v\n", i, err)
			status = 1
			continue
		}
		rows = append(rows, fr.Rows()...)
	}

	if cliutil.ParseOutputFormat(format) == cliutil.FormatJSON {
		out := make([]map[string]any, len(rows))
		for i, r := range rows {
			out[i] = map[string]any{
				"identity": r.Identity,
				"key":      r.Key,
				"value":    r.Value.Native(),
			}
		}
		cliutil.PrintJSON(os.Stdout, out)
		return status
	}
	for _, r := range rows {
		fmt.Fprintf(os.Stdout, "%s/%s/%s/%s %s = %s\n", r.NodeType, r.Node, r.Mod, r.Point, r.Key, r.Value.Canonical())
	}
	return status
}
