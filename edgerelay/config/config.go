// Package config holds the agent configuration. It is loaded once at
// start-up and passed to constructors.
package config

import (
	"fmt"
	"time"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
)

const (
	DefaultByteLimit                = 256*1024 - 512
	DefaultCoVPollIntervalSeconds   = 30
	DefaultFullFrameIntervalHours   = 4
	DefaultFullRestartIntervalHours = 12
	DefaultDeviceTimeout            = 3 * time.Second
	DefaultRetryAttempts            = 3
	DefaultRetryDelay               = 3 * time.Second
	DefaultRequestDelay             = 3 * time.Second
	DefaultGatherTimeout            = 60 * time.Second
	DefaultGatherConcurrency        = 8
)

const (
	DeviceHTTPJSON = "httpjson"
	DeviceFile     = "file"

	TransportHTTP   = "http"
	TransportStdout = "stdout"
)

type Config struct {
	Site      string          `yaml:"site"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Gather    GatherConfig    `yaml:"gather"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	File       string   `yaml:"file"`
	MaxSizeMB  int      `yaml:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups"`
	MaxAgeDays int      `yaml:"max_age_days"`
	Redact     []string `yaml:"redact"`
}

type StoreConfig struct {
	Backend        string `yaml:"backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	SQLiteDriver   string `yaml:"sqlite_driver"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	PostgresSchema string `yaml:"postgres_schema"`
}

type TransportConfig struct {
	Kind           string        `yaml:"kind"`
	URL            string        `yaml:"url"`
	TokenEnv       string        `yaml:"token_env"`
	Timeout        time.Duration `yaml:"timeout"`
	Gzip           bool          `yaml:"gzip"`
	Codec          string        `yaml:"codec"`
	ByteLimit      int           `yaml:"byte_limit"`
	OversizePolicy string        `yaml:"oversize_policy"`
}

// ScheduleConfig keeps the interval units operators already use on site.
type ScheduleConfig struct {
	CoVPollIntervalSeconds   float64 `yaml:"cov_poll_interval_seconds"`
	FullFrameIntervalHours   float64 `yaml:"full_frame_interval_hours"`
	FullRestartIntervalHours float64 `yaml:"full_restart_interval_hours"`
}

func (s ScheduleConfig) CoVInterval() time.Duration {
	return time.Duration(s.CoVPollIntervalSeconds * float64(time.Second))
}

func (s ScheduleConfig) FullFrameInterval() time.Duration {
	return time.Duration(s.FullFrameIntervalHours * float64(time.Hour))
}

func (s ScheduleConfig) RestartInterval() time.Duration {
	return time.Duration(s.FullRestartIntervalHours * float64(time.Hour))
}

type GatherConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
	Backoff  string        `yaml:"backoff"`
}

type DeviceConfig struct {
	Name         string        `yaml:"name"`
	Kind         string        `yaml:"kind"`
	IP           string        `yaml:"ip"`
	BaseURL      string        `yaml:"base_url"`
	DiscoverPath string        `yaml:"discover_path"`
	ValuesPath   string        `yaml:"values_path"`
	Path         string        `yaml:"path"`
	SOCKS5       string        `yaml:"socks5"`
	Timeout      time.Duration `yaml:"timeout"`
	RequestDelay time.Duration `yaml:"request_delay"`
	Retry        RetryConfig   `yaml:"retry"`
}

// Default returns the configuration used for every key a file leaves out.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Redact:     []string{"REDACTED", "User-Agent"},
		},
		Store: StoreConfig{
			Backend:        "sqlite",
			SQLitePath:     "edgerelay.db",
			SQLiteDriver:   "sqlite",
			PostgresSchema: "edgerelay",
		},
		Transport: TransportConfig{
			Kind:           TransportStdout,
			Timeout:        30 * time.Second,
			Codec:          "json",
			ByteLimit:      DefaultByteLimit,
			OversizePolicy: "send",
		},
		Schedule: ScheduleConfig{
			CoVPollIntervalSeconds:   DefaultCoVPollIntervalSeconds,
			FullFrameIntervalHours:   DefaultFullFrameIntervalHours,
			FullRestartIntervalHours: DefaultFullRestartIntervalHours,
		},
		Gather: GatherConfig{
			Timeout:        DefaultGatherTimeout,
			MaxConcurrency: DefaultGatherConcurrency,
		},
	}
}

// applyDeviceDefaults fills per-device zero values.
func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Kind == "" {
			d.Kind = DeviceHTTPJSON
		}
		if d.Name == "" {
			d.Name = d.IP
		}
		if d.Timeout == 0 {
			d.Timeout = DefaultDeviceTimeout
		}
		if d.Kind == DeviceHTTPJSON && d.RequestDelay == 0 {
			d.RequestDelay = DefaultRequestDelay
		}
		if d.Retry.Attempts == 0 {
			d.Retry.Attempts = DefaultRetryAttempts
		}
		if d.Retry.Delay == 0 {
			d.Retry.Delay = DefaultRetryDelay
		}
		if d.Retry.Backoff == "" {
			d.Retry.Backoff = "fixed"
		}
	}
}

// Validate rejects configurations the agent cannot run with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return configErr("store.sqlite_path is required")
		}
		switch c.Store.SQLiteDriver {
		case "sqlite", "sqlite3":
		default:
			return configErr("store.sqlite_driver must be sqlite or sqlite3, got %q", c.Store.SQLiteDriver)
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return configErr("store.postgres_dsn is required")
		}
	default:
		return configErr("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Transport.Kind {
	case TransportHTTP:
		if c.Transport.URL == "" {
			return configErr("transport.url is required for the http transport")
		}
	case TransportStdout:
	default:
		return configErr("unknown transport.kind %q", c.Transport.Kind)
	}
	if c.Transport.ByteLimit <= 0 {
		return configErr("transport.byte_limit must be positive")
	}
	switch c.Transport.Codec {
	case "json", "cbor":
	default:
		return configErr("unknown transport.codec %q", c.Transport.Codec)
	}
	switch c.Transport.OversizePolicy {
	case "send", "drop":
	default:
		return configErr("unknown transport.oversize_policy %q", c.Transport.OversizePolicy)
	}

	if c.Schedule.CoVInterval() <= 0 || c.Schedule.FullFrameInterval() <= 0 || c.Schedule.RestartInterval() <= 0 {
		return configErr("schedule intervals must be positive")
	}
	if c.Gather.MaxConcurrency < 1 {
		return configErr("gather.max_concurrency must be at least 1")
	}

	seen := map[string]bool{}
	for i, d := range c.Devices {
		if d.Name == "" {
			return configErr("devices[%d] needs a name or ip", i)
		}
		if seen[d.Name] {
			return configErr("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case DeviceHTTPJSON:
			if d.IP == "" && d.BaseURL == "" {
				return configErr("device %q needs ip or base_url", d.Name)
			}
		case DeviceFile:
			if d.Path == "" {
				return configErr("device %q needs a path", d.Name)
			}
		default:
			return configErr("device %q has unknown kind %q", d.Name, d.Kind)
		}
		if d.Retry.Attempts < 1 {
			return configErr("device %q retry.attempts must be at least 1", d.Name)
		}
		switch d.Retry.Backoff {
		case "fixed", "double":
		default:
			return configErr("device %q has unknown retry.backoff %q", d.Name, d.Retry.Backoff)
		}
	}
	return nil
}

// Warnings lists settings that are allowed but probably not intended.
func (c Config) Warnings() []string {
	var out []string
	s := c.Schedule
	if s.FullFrameInterval() < s.CoVInterval() {
		out = append(out, "full frame interval is shorter than the CoV interval; every cycle will be a full frame")
	}
	if s.RestartInterval() < s.FullFrameInterval() {
		out = append(out, "restart interval is shorter than the full frame interval; full frames only happen as part of restarts")
	}
	if len(c.Devices) == 0 {
		out = append(out, "no devices configured")
	}
	return out
}

func configErr(format string, args ...any) error {
	return rerrors.ConfigError(fmt.Sprintf(format, args...))
}
