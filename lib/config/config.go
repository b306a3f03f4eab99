// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file when --config is
// not given.
const EnvironmentVariable = "CKMON_CONFIG"

// Config is the configuration shared by the ckmon commands.
type Config struct {
	// Output configures the rolling file handler that persists
	// relayed entries. Relayed entries are only written to disk when
	// Output.Directory is set.
	Output OutputConfig `yaml:"output"`

	// Relay configures the pipe receiver.
	Relay RelayConfig `yaml:"relay"`

	// Index configures the offset index cache.
	Index IndexConfig `yaml:"index"`
}

// OutputConfig configures rolling log files.
type OutputConfig struct {
	// Directory receives the log files. Empty disables file output.
	Directory string `yaml:"directory"`

	// Prefix starts every file name: <prefix>-<UTC time>-<seq>.ckmon.
	// Default: ckmon
	Prefix string `yaml:"prefix"`

	// MaxEntriesPerFile rolls to a new file after this many entries.
	// Zero means never roll.
	MaxEntriesPerFile int `yaml:"max_entries_per_file"`

	// Compression is one of none, gzip, zstd, lz4.
	// Default: none
	Compression string `yaml:"compression"`

	// Version is the format version written. Zero means current.
	Version int `yaml:"version"`
}

// RelayConfig configures the pipe receiver.
type RelayConfig struct {
	// FailureWait bounds how long the receiver waits for the rest of
	// the stream after the child process has failed.
	// Default: 500ms
	FailureWait string `yaml:"failure_wait"`

	// MinimalLevel is the lowest severity the relay forwards.
	// Default: trace
	MinimalLevel string `yaml:"minimal_level"`
}

// IndexConfig configures the offset index cache.
type IndexConfig struct {
	// Directory holds the cached indexes. Empty disables the cache.
	Directory string `yaml:"directory"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Prefix:      "ckmon",
			Compression: "none",
		},
		Relay: RelayConfig{
			FailureWait:  "500ms",
			MinimalLevel: "trace",
		},
	}
}

// Load loads the file named by CKMON_CONFIG. There is no discovery: if
// the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your ckmon.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadOptional loads path when it is non-empty, then CKMON_CONFIG when
// that is set, and otherwise returns Default(). Commands that work
// without any configuration use this.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads configuration from path. Files ending in .json or
// .jsonc may carry comments and trailing commas; everything else is
// YAML. ${VAR} and ${VAR:-default} are expanded in directory fields.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	// JSON is a subset of YAML, so one decoder serves both.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Output.Directory = expandVars(c.Output.Directory, vars)
	c.Index.Directory = expandVars(c.Index.Directory, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// FailureWaitDuration parses Relay.FailureWait.
func (c *Config) FailureWaitDuration() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Relay.FailureWait)
	if err != nil {
		return 0, fmt.Errorf("relay.failure_wait: %w", err)
	}
	return duration, nil
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Output.Directory != "" && c.Output.Prefix == "" {
		errs = append(errs, fmt.Errorf("output.prefix is required when output.directory is set"))
	}
	if strings.ContainsRune(c.Output.Prefix, filepath.Separator) {
		errs = append(errs, fmt.Errorf("output.prefix must not contain %q", filepath.Separator))
	}
	if c.Output.MaxEntriesPerFile < 0 {
		errs = append(errs, fmt.Errorf("output.max_entries_per_file must not be negative"))
	}
	compressions := []string{"", "none", "gzip", "zstd", "lz4"}
	if !contains(compressions, c.Output.Compression) {
		errs = append(errs, fmt.Errorf("output.compression must be one of: %v", compressions[1:]))
	}
	if c.Output.Version != 0 && (c.Output.Version < 5 || c.Output.Version > 8) {
		errs = append(errs, fmt.Errorf("output.version %d is not between 5 and 8", c.Output.Version))
	}

	if duration, err := c.FailureWaitDuration(); err != nil {
		errs = append(errs, err)
	} else if duration <= 0 {
		errs = append(errs, fmt.Errorf("relay.failure_wait must be positive"))
	}
	levels := []string{"debug", "trace", "info", "warn", "warning", "error", "fatal"}
	if !contains(levels, strings.ToLower(c.Relay.MinimalLevel)) {
		errs = append(errs, fmt.Errorf("relay.minimal_level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Output.Directory, c.Index.Directory} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
