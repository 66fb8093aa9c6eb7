package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/nonibytes/edgerelay/edgerelay/agent"
	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/internal/cliutil"
	"github.com/nonibytes/edgerelay/pkg/edgerelay"
)

func RunOnce(g cliopt.GlobalOptions, argv []string) int {
	fs := pflag.NewFlagSet("once", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var full, restart bool
	fs.BoolVar(&full, "full", false, "send every row, not only changes")
	fs.BoolVar(&restart, "restart", false, "rediscover devices and clear stored values first")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	cfg, logger, closer, err := cliutil.Setup(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()

	ctx := context.Background()
	rt, err := edgerelay.Open(ctx, cfg, edgerelay.OpenOptions{Logger: logger})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.Close()

	var rep agent.Report
	if restart {
		rep, err = rt.Agent.FullRestart(ctx)
	} else {
		rep, err = rt.Agent.RunCycle(ctx, full)
	}
	cliutil.PrintJSON(os.Stderr, reportView(rep))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func reportView(r agent.Report) map[string]any {
	return map[string]any{
		"mode":            r.Mode.String(),
		"devices":         r.Devices,
		"failed_devices":  r.FailedDevices,
		"records":         r.Records,
		"rows":            r.Rows,
		"rejected":        r.Rejected,
		"changed":         r.Changed,
		"messages":        r.Messages,
		"sent":            r.Sent,
		"bytes":           r.Bytes,
		"oversize":        r.Oversize,
		"dropped_records": r.DroppedRecords,
		"duration":        r.Duration.String(),
	}
}
