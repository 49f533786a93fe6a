// Package config handles loading and saving flowstate configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/flowstate/config.yaml
//   - State:   ~/.local/state/flowstate/ (last snapshot)
//
// Command line flags override whatever the file sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRefreshInterval is how often the TUI re-reads data sources.
const DefaultRefreshInterval = 30 * time.Second

// Profile is a named combination of rules, diagram and data sources,
// selected with --profile.
type Profile struct {
	Name    string   `yaml:"name"`
	Rules   string   `yaml:"rules,omitempty"`
	Diagram string   `yaml:"diagram,omitempty"`
	Sources []string `yaml:"sources,omitempty"`
}

type SnapshotConfig struct {
	Path  string `yaml:"path,omitempty"`  // .svg or .png
	Title string `yaml:"title,omitempty"` // header line; the diagram title when empty
}

type UIConfig struct {
	Theme      string  `yaml:"theme,omitempty"`       // dark, light or auto
	SplitRatio float64 `yaml:"split_ratio,omitempty"` // list pane share (0.2-0.8)
}

// Config is the top-level configuration.
type Config struct {
	Rules           string         `yaml:"rules,omitempty"`
	Diagram         string         `yaml:"diagram,omitempty"`
	Sources         []string       `yaml:"sources,omitempty"`
	Hooks           string         `yaml:"hooks,omitempty"`
	RefreshInterval time.Duration  `yaml:"refresh_interval,omitempty"`
	Watch           bool           `yaml:"watch,omitempty"`
	Snapshot        SnapshotConfig `yaml:"snapshot,omitempty"`
	UI              UIConfig       `yaml:"ui,omitempty"`
	Profiles        []Profile      `yaml:"profiles,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		UI: UIConfig{
			Theme:      "auto",
			SplitRatio: 0.4,
		},
	}
}

// ConfigDir returns the XDG config directory for flowstate.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "flowstate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flowstate")
}

// StateDir returns the XDG state directory for flowstate.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "flowstate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "flowstate")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Returns DefaultConfig if the
// file doesn't exist. Relative paths in the file are taken relative to the
// file's directory; ~ is expanded.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Rules = resolve(base, cfg.Rules)
	cfg.Diagram = resolve(base, cfg.Diagram)
	cfg.Hooks = resolve(base, cfg.Hooks)
	cfg.Snapshot.Path = resolve(base, cfg.Snapshot.Path)
	for i := range cfg.Sources {
		cfg.Sources[i] = resolve(base, cfg.Sources[i])
	}
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		p.Rules = resolve(base, p.Rules)
		p.Diagram = resolve(base, p.Diagram)
		for j := range p.Sources {
			p.Sources[j] = resolve(base, p.Sources[j])
		}
	}
	return cfg, nil
}

// Validate checks values a file can get wrong.
func (c Config) Validate() error {
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative, got %v", c.RefreshInterval)
	}
	if r := c.UI.SplitRatio; r != 0 && (r < 0.2 || r > 0.8) {
		return fmt.Errorf("ui.split_ratio must be within 0.2-0.8, got %v", r)
	}
	switch c.UI.Theme {
	case "", "auto", "dark", "light":
	default:
		return fmt.Errorf("unknown ui.theme %q", c.UI.Theme)
	}
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		key := strings.ToLower(p.Name)
		if p.Name == "" || seen[key] {
			return fmt.Errorf("profile names must be unique and non-empty, got %q", p.Name)
		}
		seen[key] = true
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// FindProfile returns the profile with the given name, or nil.
func (c Config) FindProfile(name string) *Profile {
	for i := range c.Profiles {
		if strings.EqualFold(c.Profiles[i].Name, name) {
			return &c.Profiles[i]
		}
	}
	return nil
}

// WithProfile overlays the non-empty fields of the named profile.
func (c Config) WithProfile(name string) (Config, error) {
	p := c.FindProfile(name)
	if p == nil {
		return c, fmt.Errorf("unknown profile %q", name)
	}
	if p.Rules != "" {
		c.Rules = p.Rules
	}
	if p.Diagram != "" {
		c.Diagram = p.Diagram
	}
	if len(p.Sources) > 0 {
		c.Sources = append([]string(nil), p.Sources...)
	}
	return c, nil
}

func resolve(base, path string) string {
	if path == "" {
		return ""
	}
	path = expandHome(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
