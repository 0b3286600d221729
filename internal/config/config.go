// Package config loads the IDE settings from defaults, an optional YAML file
// and LIVEIDE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"go-live-ide/internal/viewer"
)

// FileName is the conventional config file name.
const FileName = ".liveide.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: LIVEIDE_COMPILER__BINARY sets compiler.binary.
const EnvPrefix = "LIVEIDE_"

// Config is the top-level configuration, corresponding to .liveide.yml.
type Config struct {
	Addr        string          `yaml:"addr" koanf:"addr"`
	LogLevel    string          `yaml:"log_level" koanf:"log_level"`
	LogFile     string          `yaml:"log_file" koanf:"log_file"`
	DefaultZoom float64         `yaml:"default_zoom" koanf:"default_zoom"`
	AllowAll    bool            `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	Compiler    CompilerConfig  `yaml:"compiler" koanf:"compiler"`
	Workspace   WorkspaceConfig `yaml:"workspace" koanf:"workspace"`
}

// CompilerConfig selects the external typesetting compiler.
type CompilerConfig struct {
	Binary    string   `yaml:"binary" koanf:"binary"`
	Version   string   `yaml:"version" koanf:"version"`
	FontPaths []string `yaml:"font_paths" koanf:"font_paths"`
	WorkDir   string   `yaml:"work_dir" koanf:"work_dir"`
}

// WorkspaceConfig seeds the project from a directory.
type WorkspaceConfig struct {
	Dir     string   `yaml:"dir" koanf:"dir"`
	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`
	Watch   bool     `yaml:"watch" koanf:"watch"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:7777",
		LogLevel:    "info",
		DefaultZoom: viewer.DefaultZoom,
		Compiler: CompilerConfig{
			Binary: "typst",
		},
		Workspace: WorkspaceConfig{
			Include: []string{"**/*.{html,htm,css,js,json,md,markdown,typ,txt,csv,svg,bib,yml,yaml,toml}"},
			Exclude: []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
		},
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (LIVEIDE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.DefaultZoom < viewer.MinZoom || c.DefaultZoom > viewer.MaxZoom {
		return fmt.Errorf("default_zoom %v out of range [%v, %v]", c.DefaultZoom, viewer.MinZoom, viewer.MaxZoom)
	}
	if c.Compiler.Binary == "" {
		return fmt.Errorf("compiler.binary is required")
	}
	for _, p := range append(append([]string{}, c.Workspace.Include...), c.Workspace.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid workspace pattern %q", p)
		}
	}
	if c.Workspace.Watch && c.Workspace.Dir == "" {
		return fmt.Errorf("workspace.watch requires workspace.dir")
	}
	return nil
}
