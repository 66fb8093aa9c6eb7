package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
)

// Load reads a YAML file, or a JSON file that may carry comments, over the
// defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, rerrors.Wrap(rerrors.ErrConfig, "read config", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext (".yaml", ".yml", ".json",
// ".jsonc").
func Parse(data []byte, ext string) (Config, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are gone
		data = jsonc.ToJSON(data)
	case ".yaml", ".yml", "":
	default:
		return Config{}, rerrors.ConfigError(fmt.Sprintf("unsupported config format %q", ext))
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, rerrors.Wrap(rerrors.ErrConfig, "decode config", err)
	}
	cfg.applyDeviceDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
