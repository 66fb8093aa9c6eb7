package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/nonibytes/edgerelay/edgerelay/metrics"
	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/internal/cliutil"
	"github.com/nonibytes/edgerelay/pkg/edgerelay"
)

func RunRun(g cliopt.GlobalOptions, argv []string) int {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var listen string
	fs.StringVar(&listen, "metrics-listen", "", "serve /metrics on this address (overrides config)")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	cfg, logger, closer, err := cliutil.Setup(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()
	if listen != "" {
		cfg.Metrics.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := edgerelay.Open(ctx, cfg, edgerelay.OpenOptions{Logger: logger, Registerer: reg})
	if err != nil {
		logger.WithError(err).Error("cannot start agent")
		return 1
	}
	defer rt.Close()

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		logger.WithField("addr", cfg.Metrics.Listen).Info("serving metrics")
	}

	err = rt.Agent.Run(ctx)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	if err != nil {
		logger.WithError(err).Error("agent stopped")
		return 1
	}
	return 0
}
