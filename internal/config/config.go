// Package config loads patchly's tuning knobs (block size, bucket cap,
// literal cap) from a JSONC config file, following
// the same global/project/CLI precedence and hujson-based parsing as the
// teacher's ticket-tracker config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/hutomosaktikartiko/patchly/internal/differ"
)

// ConfigFileName is the default project config file name, checked in the
// working directory.
const ConfigFileName = ".patchly.json"

// Config holds every tunable knob. Zero fields mean "use the package
// default" at the point they're consumed.
type Config struct {
	BlockSize  int `json:"block_size,omitempty"`  //nolint:tagliatelle // snake_case for config file
	BucketCap  int `json:"bucket_cap,omitempty"`  //nolint:tagliatelle // snake_case for config file
	MaxLiteral int `json:"max_literal,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// DefaultConfig returns patchly's built-in defaults.
func DefaultConfig() Config {
	d := differ.DefaultOptions()

	return Config{BlockSize: d.BlockSize, BucketCap: d.BucketCap, MaxLiteral: d.MaxLiteral}
}

// DifferOptions converts cfg into differ.Options.
func (cfg Config) DifferOptions() differ.Options {
	return differ.Options{BlockSize: cfg.BlockSize, BucketCap: cfg.BucketCap, MaxLiteral: cfg.MaxLiteral}
}

// Sources records which config files, if any, contributed to a load.
type Sources struct {
	Global  string
	Project string
}

// Load resolves configuration with the following precedence (highest
// wins): defaults, global user config (~/.config/patchly/config.json or
// $XDG_CONFIG_HOME/patchly/config.json), project config (.patchly.json in
// workDir, or an explicit path via configPath), then cliOverrides.
func Load(workDir, configPath string, cliOverrides Config, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProject(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	cfg = merge(cfg, cliOverrides)

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "patchly", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "patchly", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "patchly", "config.json")
}

func loadGlobal(env []string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	var path string

	mustExist := configPath != ""

	if mustExist {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		if _, err := os.Stat(path); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		path = filepath.Join(workDir, ConfigFileName)
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is config-driven, not attacker input in this CLI's threat model
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.BlockSize > 0 {
		base.BlockSize = overlay.BlockSize
	}

	if overlay.BucketCap > 0 {
		base.BucketCap = overlay.BucketCap
	}

	if overlay.MaxLiteral > 0 {
		base.MaxLiteral = overlay.MaxLiteral
	}

	return base
}

func validate(cfg Config) error {
	if cfg.BlockSize <= 0 {
		return errBlockSizeInvalid
	}

	if cfg.BucketCap <= 0 {
		return errBucketCapInvalid
	}

	if cfg.MaxLiteral < cfg.BlockSize {
		return errMaxLiteralTooSmall
	}

	return nil
}

// Format returns cfg as formatted JSON, for `patchly config` diagnostics.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(data), nil
}
