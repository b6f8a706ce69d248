package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// applyFile overlays the YAML document at path onto cfg. Keys missing from
// the file keep their current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

// Reload re-reads the file the configuration was loaded from and returns a
// fresh copy with environment overrides applied again.
func (c *Config) Reload() (*Config, error) {
	if c.File == "" {
		return nil, fmt.Errorf("configuration was not loaded from a file")
	}
	next := Defaults()
	if err := applyFile(next, c.File); err != nil {
		return nil, err
	}
	next.File = c.File
	applyEnv(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}
