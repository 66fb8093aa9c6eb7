package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/edgerelay/edgerelay/config"
	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
)

const siteYAML = `
site: "0215"
log:
  level: debug
store:
  backend: sqlite
  sqlite_path: /var/lib/edgerelay/cov.db
transport:
  kind: http
  url: https://ingest.example.com/v1/packets
  token_env: EDGERELAY_TOKEN
  gzip: true
  byte_limit: 230000
schedule:
  cov_poll_interval_seconds: 15
  full_frame_interval_hours: 2.5
devices:
  - ip: 10.0.0.1
    values_path: /values
    socks5: 127.0.0.1:1080
  - name: export
    kind: file
    path: /srv/export/points.jsonl
    retry:
      attempts: 1
`

func TestParseYAMLAppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(siteYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, "0215", cfg.Site)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"REDACTED", "User-Agent"}, cfg.Log.Redact)
	assert.Equal(t, "sqlite", cfg.Store.SQLiteDriver)
	assert.Equal(t, 230000, cfg.Transport.ByteLimit)
	assert.Equal(t, "json", cfg.Transport.Codec)
	assert.True(t, cfg.Transport.Gzip)

	assert.Equal(t, 15*time.Second, cfg.Schedule.CoVInterval())
	assert.Equal(t, 150*time.Minute, cfg.Schedule.FullFrameInterval())
	assert.Equal(t, 12*time.Hour, cfg.Schedule.RestartInterval())

	require.Len(t, cfg.Devices, 2)
	panel := cfg.Devices[0]
	assert.Equal(t, "10.0.0.1", panel.Name)
	assert.Equal(t, config.DeviceHTTPJSON, panel.Kind)
	assert.Equal(t, config.DefaultDeviceTimeout, panel.Timeout)
	assert.Equal(t, config.DefaultRequestDelay, panel.RequestDelay)
	assert.Equal(t, config.DefaultRetryAttempts, panel.Retry.Attempts)
	assert.Equal(t, "fixed", panel.Retry.Backoff)

	file := cfg.Devices[1]
	assert.Equal(t, 1, file.Retry.Attempts)
	assert.Zero(t, file.RequestDelay)
}

func TestLoadJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgerelay.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// site code from the install sheet
		"site": "0042",
		"transport": {"kind": "stdout", "codec": "cbor", "oversize_policy": "drop",},
		"gather": {"timeout": "20s", "max_concurrency": 2},
		"devices": [{"name": "e3", "base_url": "http://10.2.0.4:8080", "timeout": "5s"}],
	}`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0042", cfg.Site)
	assert.Equal(t, "cbor", cfg.Transport.Codec)
	assert.Equal(t, "drop", cfg.Transport.OversizePolicy)
	assert.Equal(t, 20*time.Second, cfg.Gather.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Devices[0].Timeout)
}

func TestEmptyFileIsDefaults(t *testing.T) {
	cfg, err := config.Parse(nil, ".yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Transport, cfg.Transport)
	assert.Contains(t, cfg.Warnings(), "no devices configured")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := config.Parse([]byte("transprot:\n  kind: http\n"), ".yml")
	require.Error(t, err)
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Store.Backend = "redis" }},
		{"postgres without dsn", func(c *config.Config) { c.Store.Backend = "postgres" }},
		{"bad sqlite driver", func(c *config.Config) { c.Store.SQLiteDriver = "duckdb" }},
		{"http without url", func(c *config.Config) { c.Transport.Kind = "http" }},
		{"zero byte limit", func(c *config.Config) { c.Transport.ByteLimit = 0 }},
		{"unknown codec", func(c *config.Config) { c.Transport.Codec = "xml" }},
		{"unknown oversize policy", func(c *config.Config) { c.Transport.OversizePolicy = "split" }},
		{"zero interval", func(c *config.Config) { c.Schedule.CoVPollIntervalSeconds = 0 }},
		{"no concurrency", func(c *config.Config) { c.Gather.MaxConcurrency = 0 }},
		{"duplicate device", func(c *config.Config) {
			d := config.DeviceConfig{Name: "a", Kind: "file", Path: "x", Retry: config.RetryConfig{Attempts: 1, Backoff: "fixed"}}
			c.Devices = []config.DeviceConfig{d, d}
		}},
		{"panel without address", func(c *config.Config) {
			c.Devices = []config.DeviceConfig{{Name: "a", Kind: "httpjson", Retry: config.RetryConfig{Attempts: 1, Backoff: "fixed"}}}
		}},
		{"unknown device kind", func(c *config.Config) {
			c.Devices = []config.DeviceConfig{{Name: "a", Kind: "bacnet", Retry: config.RetryConfig{Attempts: 1, Backoff: "fixed"}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
		})
	}
	assert.NoError(t, config.Default().Validate())
}

func TestWarnings(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule.FullRestartIntervalHours = 1
	cfg.Devices = []config.DeviceConfig{{Name: "a"}}
	w := cfg.Warnings()
	require.Len(t, w, 1)
	assert.Contains(t, w[0], "restart interval")
}

func TestUnsupportedExtension(t *testing.T) {
	_, err := config.Parse([]byte("a = 1"), ".toml")
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
}
