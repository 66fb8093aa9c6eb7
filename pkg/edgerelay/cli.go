package edgerelay

import (
	"github.com/nonibytes/edgerelay/edgerelay/config"
	"github.com/nonibytes/edgerelay/internal/cliopt"
)

// ConfigFromCLI loads the config file named by the global flags, or the
// defaults when there is none, and applies the flag overrides.
func ConfigFromCLI(g cliopt.GlobalOptions) (config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.Backend != "" {
		cfg.Store.Backend = g.Backend
	}
	if g.SQLitePath != "" {
		cfg.Store.SQLitePath = g.SQLitePath
	}
	if g.PostgresDSN != "" {
		cfg.Store.PostgresDSN = g.PostgresDSN
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
