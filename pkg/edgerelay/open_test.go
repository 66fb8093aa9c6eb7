package edgerelay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/edgerelay/edgerelay/config"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
	"github.com/nonibytes/edgerelay/internal/cliopt"
	"github.com/nonibytes/edgerelay/pkg/edgerelay"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	points := filepath.Join(dir, "points.json")
	require.NoError(t, os.WriteFile(points, []byte(`[
		{"@nodetype":"0","@node":"1","@mod":"0","@point":"7","name":"Walk-in","temp":{"value":34.5}},
		{"@nodetype":"0","@node":"1","@mod":"0","@point":"8","defrost":false}
	]`), 0o644))

	cfg := config.Default()
	cfg.Site = "0215"
	cfg.Store.SQLitePath = filepath.Join(dir, "cov.db")
	cfg.Devices = []config.DeviceConfig{{
		Name:  "export",
		Kind:  config.DeviceFile,
		IP:    "10.0.0.7",
		Path:  points,
		Retry: config.RetryConfig{Attempts: 1, Backoff: "fixed"},
	}}
	return cfg
}

func TestOpenRunsCycleToStdout(t *testing.T) {
	cfg := fileConfig(t)
	var out bytes.Buffer
	reg := prometheus.NewRegistry()

	rt, err := edgerelay.Open(context.Background(), cfg, edgerelay.OpenOptions{
		Logger:     quietLogger(),
		Registerer: reg,
		Stdout:     &out,
	})
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Metrics)

	rep, err := rt.Agent.RunCycle(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Changed)

	var chunks []struct {
		DeviceID string   `json:"device_id"`
		Schema   []string `json:"schema"`
		Records  [][]any  `json:"records"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &chunks))
	require.Len(t, chunks, 1)
	assert.Equal(t, "10.0.0.7", chunks[0].DeviceID)
	assert.Len(t, chunks[0].Records, 3)

	n, err := rt.Store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewAdapterRejectsUnknownBackends(t *testing.T) {
	_, err := edgerelay.NewAdapter(config.StoreConfig{Backend: "redis"})
	assert.True(t, edgerelay.IsKind(err, edgerelay.ErrConfig))

	_, err = edgerelay.NewAdapter(config.StoreConfig{Backend: "postgres", PostgresDSN: "postgres://x", PostgresSchema: "bad-name;"})
	assert.True(t, edgerelay.IsKind(err, edgerelay.ErrConfig))

	a, err := edgerelay.NewAdapter(config.StoreConfig{Backend: "postgres", PostgresDSN: "postgres://x", PostgresSchema: "edgerelay"})
	require.NoError(t, err)
	assert.Equal(t, "postgres:edgerelay", a.StoreID())
}

func TestNewDriverKinds(t *testing.T) {
	d, err := edgerelay.NewDriver(config.DeviceConfig{
		Name:  "e3",
		Kind:  config.DeviceHTTPJSON,
		IP:    "10.2.0.4",
		Retry: config.RetryConfig{Attempts: 3, Delay: 1, Backoff: "double"},
	}, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "e3", d.Name())

	_, err = edgerelay.NewDriver(config.DeviceConfig{Name: "x", Kind: "modbus", Retry: config.RetryConfig{Attempts: 1}}, nil, quietLogger())
	assert.True(t, edgerelay.IsKind(err, edgerelay.ErrConfig))
}

func TestNewTransportReadsTokenFromEnv(t *testing.T) {
	t.Setenv("EDGERELAY_TEST_TOKEN", "s3cret")
	cfg := config.Default()
	cfg.Transport.Kind = config.TransportHTTP
	cfg.Transport.URL = "http://127.0.0.1:1/ingest"
	cfg.Transport.TokenEnv = "EDGERELAY_TEST_TOKEN"

	codec, err := pack.CodecByName("json")
	require.NoError(t, err)
	tr, err := edgerelay.NewTransport(cfg, codec, nil, quietLogger())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
}

func TestConfigFromCLIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgerelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site: \"0042\"\nstore:\n  sqlite_path: from-file.db\n"), 0o644))

	cfg, err := edgerelay.ConfigFromCLI(cliopt.GlobalOptions{Config: path, LogLevel: "debug", SQLitePath: "flag.db"})
	require.NoError(t, err)
	assert.Equal(t, "0042", cfg.Site)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "flag.db", cfg.Store.SQLitePath)

	_, err = edgerelay.ConfigFromCLI(cliopt.GlobalOptions{Backend: "postgres"})
	assert.True(t, edgerelay.IsKind(err, edgerelay.ErrConfig))
}
