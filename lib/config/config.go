// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for spine tools.
//
// Configuration is loaded from a single file specified by either the
// SPINE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search: an audit tool with hidden
// configuration overrides cannot be trusted to have checked what the
// operator thinks it checked.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SPINE_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for spine tools.
type Config struct {
	// TruthRoot is the root directory of the truth store. Every
	// artifact path, manifest path, and spine pattern resolves under
	// this root; resolution outside it is fail-closed everywhere.
	TruthRoot string `yaml:"truth_root"`

	// StateDir is the local, non-authoritative state directory for
	// trigger fingerprints. Safe to delete at any time.
	StateDir string `yaml:"state_dir"`

	// RegistryFile is the path to the governance-authored spine
	// authority registry (JSONC).
	RegistryFile string `yaml:"registry_file"`

	// Schemas maps a dataset_version to its governed record schema.
	Schemas map[string]SchemaRef `yaml:"schemas"`
}

// SchemaRef points at one governed record schema in the schema
// repository.
type SchemaRef struct {
	// File is the path to the JSON Schema document (JSON or JSONC).
	File string `yaml:"file"`

	// OrderingField is the record field that must be strictly
	// increasing within each dataset file.
	OrderingField string `yaml:"ordering_field"`
}

// Default returns the default configuration. These defaults exist so
// every field has a sensible zero-value base, not as a substitute for
// the config file: the file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		TruthRoot: "",
		StateDir:  filepath.Join(homeDir, ".local", "state", "spine"),
		Schemas:   map[string]SchemaRef{},
	}
}

// Load loads configuration from the file named by SPINE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("SPINE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SPINE_CONFIG environment variable not set; " +
			"set it to the path of your spine.yaml config file, or use the --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override its values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in all
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SPINE_ROOT": c.TruthRoot,
		"HOME":       os.Getenv("HOME"),
	}

	c.TruthRoot = expandVars(c.TruthRoot, vars)
	vars["SPINE_ROOT"] = c.TruthRoot // Update for dependent paths.

	c.StateDir = expandVars(c.StateDir, vars)
	c.RegistryFile = expandVars(c.RegistryFile, vars)
	for version, ref := range c.Schemas {
		ref.File = expandVars(ref.File, vars)
		c.Schemas[version] = ref
	}
}

// Validate checks the configuration for errors, collecting all of
// them rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.TruthRoot == "" {
		errs = append(errs, fmt.Errorf("truth_root is required"))
	}
	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}
	for version, ref := range c.Schemas {
		if ref.File == "" {
			errs = append(errs, fmt.Errorf("schemas.%s: file is required", version))
		}
		if ref.OrderingField == "" {
			errs = append(errs, fmt.Errorf("schemas.%s: ordering_field is required", version))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

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
