package cliutil

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/nonibytes/edgerelay/edgerelay/config"
	"github.com/nonibytes/edgerelay/edgerelay/logging"
	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/pkg/edgerelay"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatPretty, FormatJSON:
		return OutputFormat(s)
	default:
		return FormatPretty
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// Setup loads the configuration for a command and builds its logger. The
// returned closer flushes the log file and must be closed by the caller.
func Setup(g cliopt.GlobalOptions) (config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := edgerelay.ConfigFromCLI(g)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Redact:     cfg.Log.Redact,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, closer, nil
}
