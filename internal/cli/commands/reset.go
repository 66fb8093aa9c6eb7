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

func RunReset(g cliopt.GlobalOptions, argv []string) int {
	fs := pflag.NewFlagSet("reset", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var vacuum bool
	fs.BoolVar(&vacuum, "optimize", false, "compact the database afterwards")
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
	store, err := edgerelay.OpenStore(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer store.Close()

	if err := store.Clear(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if vacuum {
		if err := store.Optimize(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	logger.WithField("store", store.ID()).Info("stored values cleared")
	return 0
}
