package config

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

//go:embed default_config.yaml
var defaultConfig []byte

// Exists reports whether a configuration file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteDefault writes the embedded starter configuration to path so a
// first run leaves the operator a file to edit instead of a parse error.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if Exists(path) {
		return errors.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
		return errors.Wrap(err, "write default config")
	}
	return nil
}
