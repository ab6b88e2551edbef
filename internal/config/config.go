/*
PURPOSE:
  Defines the configuration structure and loading logic for iulog.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Output filename, optional unit-type and update-kind allow-lists.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (IULOG_...).
  - An allow-list that is present but empty must stay non-nil; it means
    "log nothing", not "no restriction".

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine, internal/server
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default config files fall back to defaults silently.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (indented output, :8089 listener).

USAGE:
  cfg, err := config.Load("iulog.yaml")
  config.FromEnv(cfg)

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig.

RELATED FILES:
  - internal/config/env.go
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/iulog/internal/filter"
	"github.com/daryltucker/iulog/internal/output"
)

// Config represents the full configuration for iulog.
type Config struct {
	// Filename is the output file; ".json" is appended when missing.
	Filename string `yaml:"filename"`
	// Filter holds the optional allow-lists and where expression.
	Filter filter.Config `yaml:"filter"`
	// Indent writes records with two-space indentation.
	Indent   bool   `yaml:"indent"`
	LogLevel string `yaml:"log_level"`

	// Replay settings
	BatchSize int `yaml:"batch_size"`
	// IndexSize bounds how many units are remembered to resolve
	// previous_iu and grounded_in references.
	IndexSize int `yaml:"index_size"`

	// Serve settings
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Client settings (replay --target, status)
	Target     string        `yaml:"target"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Filename:        "iulog.json",
		Indent:          true,
		LogLevel:        "info",
		BatchSize:       64,
		IndexSize:       65536,
		Listen:          ":8089",
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		Timeout:         10 * time.Second,
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		found := false
		for _, name := range []string{"iulog.yaml", "iulog.yml"} {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports configuration errors that would otherwise only surface
// once the writer starts.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Filename) == "" {
		errs = append(errs, output.ErrInvalidFilename)
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.IndexSize <= 0 {
		errs = append(errs, fmt.Errorf("index_size must be positive, got %d", c.IndexSize))
	}
	if _, err := output.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := filter.New(c.Filter); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WriterOptions maps the config onto BufferedWriter options.
func (c *Config) WriterOptions() output.Options {
	return output.Options{
		Filename: c.Filename,
		Filter:   c.Filter,
		Indent:   c.Indent,
	}
}

// ShutdownContext bounds how long callers wait for the writer to drain.
// A non-positive ShutdownTimeout waits indefinitely.
func (c *Config) ShutdownContext() (context.Context, context.CancelFunc) {
	if c.ShutdownTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.ShutdownTimeout)
}
