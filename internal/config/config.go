// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from audiovet.yaml. Every field
// has a working default so the tool runs without any file at all.
type Config struct {
	// Workers is the decode pool size. Zero selects the logical CPU
	// count (capped); one is the single-threaded debugging mode.
	Workers int `yaml:"workers"`
	// BufferMode selects the stream mode: "auto" (buffered when the
	// pool has two or more workers), "buffered" or "streaming".
	BufferMode string `yaml:"buffer_mode"`
	LogLevel   string `yaml:"log_level"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.BufferMode == "" {
		c.BufferMode = "auto"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// validate rejects values no component can honor.
func (c *Config) validate() error {
	switch c.BufferMode {
	case "auto", "buffered", "streaming":
	default:
		return fmt.Errorf("config: unknown buffer_mode %q", c.BufferMode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: negative workers %d", c.Workers)
	}
	return nil
}

// Load reads and parses the YAML config file at path. A missing file
// yields the defaults so the tool runs without one. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
