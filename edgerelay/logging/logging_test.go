package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/logging"
)

func TestNewJSONLevelAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{
		Level:   "warn",
		Format:  "json",
		Redact:  []string{"REDACTED", "User-Agent"},
		Console: &buf,
	})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("below level")
	logger.Warn("sent header User-Agent: panel/1.0")
	logger.WithError(errors.New("token REDACTED rejected")).Error("login failed")
	logger.WithField("device", "10.0.0.1").Warn("device timed out")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "device timed out", entry["msg"])
	assert.Equal(t, "10.0.0.1", entry["device"])
	assert.Equal(t, "warning", entry["level"])
}

func TestNewWritesRotatingFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, closer, err := logging.New(logging.Options{File: path, MaxSizeMB: 1, Console: &console})
	require.NoError(t, err)

	logger.WithField("rows", 12).Info("cycle done")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cycle done")
	assert.Contains(t, console.String(), "rows=12")
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, _, err := logging.New(logging.Options{Level: "chatty"})
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
	_, _, err = logging.New(logging.Options{Format: "xml"})
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
}

func TestRedactingFormatterPassesCleanEntries(t *testing.T) {
	f := &logging.RedactingFormatter{Next: &logrus.JSONFormatter{}, Markers: []string{"secret"}}
	out, err := f.Format(logrus.WithField("k", "v"))
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	out, err = f.Format(logrus.WithField("k", "a secret"))
	require.NoError(t, err)
	assert.Empty(t, out)
}
