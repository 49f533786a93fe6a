// Package hooks runs user commands around snapshot rendering.
// Hooks are configured in .flowstate/hooks.yaml (or an explicit path) and
// run before a snapshot is written (pre-snapshot) and after (post-snapshot).
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase represents when a hook runs.
type Phase string

const (
	// PreSnapshot runs before the snapshot is rendered. Failure cancels it.
	PreSnapshot Phase = "pre-snapshot"
	// PostSnapshot runs after the snapshot is written.
	PostSnapshot Phase = "post-snapshot"
)

const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

// DefaultTimeout is the default hook execution timeout.
const DefaultTimeout = 30 * time.Second

// Hook is a single configured command.
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

type Config struct {
	Hooks ByPhase `yaml:"hooks" json:"hooks"`
}

type ByPhase struct {
	PreSnapshot  []Hook `yaml:"pre-snapshot,omitempty" json:"pre-snapshot,omitempty"`
	PostSnapshot []Hook `yaml:"post-snapshot,omitempty" json:"post-snapshot,omitempty"`
}

// SnapshotContext is exported to hooks as FS_* environment variables.
type SnapshotContext struct {
	SnapshotPath string
	Format       string
	CellCount    int
	MaxLevel     int
	Timestamp    time.Time
}

func (c SnapshotContext) ToEnv() []string {
	return []string{
		"FS_SNAPSHOT_PATH=" + c.SnapshotPath,
		"FS_SNAPSHOT_FORMAT=" + c.Format,
		fmt.Sprintf("FS_CELL_COUNT=%d", c.CellCount),
		fmt.Sprintf("FS_MAX_LEVEL=%d", c.MaxLevel),
		"FS_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// Loader reads the hook configuration.
type Loader struct {
	projectDir string
	path       string
	config     *Config
	warnings   []string
}

type LoaderOption func(*Loader)

// WithProjectDir looks for .flowstate/hooks.yaml under dir.
func WithProjectDir(dir string) LoaderOption {
	return func(l *Loader) { l.projectDir = dir }
}

// WithPath reads hooks from an explicit file; it wins over WithProjectDir.
func WithPath(path string) LoaderOption {
	return func(l *Loader) { l.path = path }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.projectDir == "" {
		l.projectDir, _ = os.Getwd()
	}
	return l
}

// Path is the file Load reads.
func (l *Loader) Path() string {
	if l.path != "" {
		return l.path
	}
	return filepath.Join(l.projectDir, ".flowstate", "hooks.yaml")
}

// Load reads the configuration. A missing file means no hooks.
func (l *Loader) Load() error {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.config = &Config{}
			return nil
		}
		return fmt.Errorf("reading hooks config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	l.warnings = nil
	cfg.Hooks.PreSnapshot, l.warnings = normalizeHooks(cfg.Hooks.PreSnapshot, PreSnapshot, l.warnings)
	cfg.Hooks.PostSnapshot, l.warnings = normalizeHooks(cfg.Hooks.PostSnapshot, PostSnapshot, l.warnings)
	l.config = &cfg
	return nil
}

// normalizeHooks applies defaults and drops hooks without a command.
func normalizeHooks(hooks []Hook, phase Phase, warnings []string) ([]Hook, []string) {
	var out []Hook
	for i, hook := range hooks {
		if strings.TrimSpace(hook.Command) == "" {
			warnings = append(warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if hook.Timeout <= 0 {
			hook.Timeout = DefaultTimeout
		}
		switch hook.OnError {
		case OnErrorFail, OnErrorContinue:
		case "":
			hook.OnError = OnErrorContinue
			if phase == PreSnapshot {
				hook.OnError = OnErrorFail
			}
		default:
			warnings = append(warnings, fmt.Sprintf("%s hook %d: unknown on_error %q, using %q", phase, i+1, hook.OnError, OnErrorContinue))
			hook.OnError = OnErrorContinue
		}
		if hook.Name == "" {
			hook.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		out = append(out, hook)
	}
	return out, warnings
}

func (l *Loader) Config() *Config {
	if l.config == nil {
		return &Config{}
	}
	return l.config
}

func (l *Loader) HasHooks() bool {
	return l.config != nil && (len(l.config.Hooks.PreSnapshot) > 0 || len(l.config.Hooks.PostSnapshot) > 0)
}

// GetHooks returns the hooks of phase, nil for an unknown phase.
func (l *Loader) GetHooks(phase Phase) []Hook {
	if l.config == nil {
		return nil
	}
	switch phase {
	case PreSnapshot:
		return l.config.Hooks.PreSnapshot
	case PostSnapshot:
		return l.config.Hooks.PostSnapshot
	}
	return nil
}

func (l *Loader) Warnings() []string { return l.warnings }

// UnmarshalYAML accepts timeouts as durations ("5s") or bare seconds.
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	type hookDTO struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}
	var dto hookDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}
	*h = Hook{Name: dto.Name, Command: dto.Command, Env: dto.Env, OnError: dto.OnError}
	if dto.Timeout == "" {
		return nil
	}
	d, err := time.ParseDuration(dto.Timeout)
	if err != nil {
		var seconds float64
		if _, scanErr := fmt.Sscanf(dto.Timeout, "%f", &seconds); scanErr != nil {
			return fmt.Errorf("invalid timeout %q: %w", dto.Timeout, err)
		}
		d = time.Duration(seconds * float64(time.Second))
	}
	h.Timeout = d
	return nil
}
