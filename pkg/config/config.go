// Package config holds the tool configuration: defaults, the optional JSON
// config file and the merge with explicitly-set command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ostorelabs/ostore-backup/pkg/buildinfo"
	"github.com/ostorelabs/ostore-backup/pkg/flagparse"
	"github.com/ostorelabs/ostore-backup/pkg/plog"
	"github.com/ostorelabs/ostore-backup/pkg/util"
)

const ConfigFileName = "ostore-backup.config.json"

// HooksConfig configures the shell commands run around a backup cycle.
type HooksConfig struct {
	Enabled    bool     `json:"enabled"`
	FailFast   bool     `json:"failFast"`
	PreBackup  []string `json:"preBackup"`
	PostBackup []string `json:"postBackup"`
}

// RuntimeConfig holds per-invocation state that never comes from the config
// file.
type RuntimeConfig struct {
	DryRun bool
	Force  bool
}

type Config struct {
	Version     string            `json:"version"`
	Container   string            `json:"container"`
	Destination string            `json:"destination"`
	Keep        int               `json:"keep"`
	Exes        map[string]string `json:"exes"`
	LogLevel    string            `json:"logLevel"`
	Hooks       HooksConfig       `json:"hooks"`
	Runtime     RuntimeConfig     `json:"-"` // Never added to config file
}

// NewDefault creates and returns a Config struct with sensible default
// values.
func NewDefault() Config {
	return Config{
		Version:     buildinfo.Version,
		Container:   "", // Intentionally empty to force user configuration.
		Destination: "", // Intentionally empty to force user configuration.
		Keep:        1,  // The newest backup plus one historical one.
		Exes: map[string]string{
			"rsync": "rsync",
		},
		LogLevel: "info",
		Hooks: HooksConfig{
			Enabled:  true,
			FailFast: true, // Pre-hooks quiesce writers; failing to do so must abort.
		},
	}
}

// Load reads the config file at path on top of the defaults, so missing
// fields keep their default value. An empty path returns plain defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return NewDefault(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", path)
	// NOTE: if config.Version differs from the app version we can add a
	// migration step here.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites a config file at path with the given
// configuration.
func Generate(configToGenerate Config, path string) error {
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", path)
	return nil
}

// Validate checks the configuration for logical errors. checkContainer is
// false for commands that only operate on the destination.
func (c *Config) Validate(checkContainer bool) error {
	if c.Destination == "" {
		return fmt.Errorf("no destination configured: set -dest or the 'destination' config field")
	}
	if c.Keep < 0 {
		return fmt.Errorf("keep count can't be negative: %d", c.Keep)
	}
	if checkContainer && c.Container == "" {
		return fmt.Errorf("no container configured: set -container or the 'container' config field")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "notice", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'notice', 'warn' or 'error'", c.LogLevel)
	}
	return nil
}

// LogSummary logs the effective configuration at debug level.
func (c *Config) LogSummary() {
	plog.Debug("Effective configuration",
		"container", c.Container,
		"destination", c.Destination,
		"keep", c.Keep,
		"logLevel", c.LogLevel,
		"hooksEnabled", c.Hooks.Enabled,
		"dryRun", c.Runtime.DryRun,
	)
}

// MergeConfigWithFlags overlays the explicitly-set flags onto the base
// configuration. Only flags present in setFlags override; defaults and file
// values survive otherwise.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "container":
			merged.Container = value.(string)
		case "dest":
			merged.Destination = value.(string)
		case "keep":
			merged.Keep = value.(int)
		case "rsync-path":
			if merged.Exes == nil {
				merged.Exes = map[string]string{}
			}
			merged.Exes["rsync"] = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "force":
			merged.Runtime.Force = value.(bool)
		case "hooks":
			merged.Hooks.Enabled = value.(bool)
		case "hook-fail-fast":
			merged.Hooks.FailFast = value.(bool)
		case "pre-backup-hooks":
			merged.Hooks.PreBackup = value.([]string)
		case "post-backup-hooks":
			merged.Hooks.PostBackup = value.([]string)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name, "command", command)
		}
	}
	return merged
}
