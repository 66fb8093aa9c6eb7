package cliopt

import "github.com/spf13/pflag"

// GlobalOptions are parsed once at the CLI root and passed to subcommands.
// Non-empty values override the matching keys of the config file.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command router and per-command code.
type GlobalOptions struct {
	Config      string
	LogLevel    string
	Backend     string
	SQLitePath  string
	PostgresDSN string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{}
}

func BindGlobalFlags(fs *pflag.FlagSet, g *GlobalOptions) {
	fs.StringVarP(&g.Config, "config", "c", g.Config, "config file (.yaml, .yml, .json or .jsonc)")
	fs.StringVar(&g.LogLevel, "log-level", g.LogLevel, "log level: debug|info|warn|error")

	fs.StringVar(&g.Backend, "backend", g.Backend, "state backend: sqlite|postgres")
	fs.StringVar(&g.SQLitePath, "sqlite-path", g.SQLitePath, "sqlite database file")
	fs.StringVar(&g.PostgresDSN, "pg-dsn", g.PostgresDSN, "postgres DSN")
}
