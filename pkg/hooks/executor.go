package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/debug"
)

// maxSummaryStderr bounds the stderr excerpt shown per failed hook.
const maxSummaryStderr = 200

// Result records one hook run.
type Result struct {
	Hook     Hook
	Phase    Phase
	Success  bool
	Stdout   string
	Stderr   string
	Duration time.Duration
	Error    error
}

// Executor runs the configured hooks with a snapshot context.
type Executor struct {
	config  *Config
	context SnapshotContext
	results []Result
}

func NewExecutor(config *Config, sc SnapshotContext) *Executor {
	if config == nil {
		config = &Config{}
	}
	return &Executor{config: config, context: sc}
}

// SetContext updates the environment handed to later runs; the snapshot path
// and counts are known only once rendering is done.
func (e *Executor) SetContext(sc SnapshotContext) { e.context = sc }

// RunPreSnapshot stops at the first failing hook whose on_error is fail.
func (e *Executor) RunPreSnapshot(ctx context.Context) error {
	for _, hook := range e.config.Hooks.PreSnapshot {
		res := e.run(ctx, hook, PreSnapshot)
		if !res.Success && hook.OnError == OnErrorFail {
			return fmt.Errorf("pre-snapshot hook %q failed: %w", hook.Name, res.Error)
		}
	}
	return nil
}

// RunPostSnapshot runs every hook and reports the failures of those marked
// fail.
func (e *Executor) RunPostSnapshot(ctx context.Context) error {
	var errs []error
	for _, hook := range e.config.Hooks.PostSnapshot {
		res := e.run(ctx, hook, PostSnapshot)
		if !res.Success && hook.OnError == OnErrorFail {
			errs = append(errs, fmt.Errorf("post-snapshot hook %q failed: %w", hook.Name, res.Error))
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) run(ctx context.Context, hook Hook, phase Phase) Result {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", hook.Command)
	env := append(os.Environ(), e.context.ToEnv()...)
	for k, v := range hook.Env {
		env = append(env, k+"="+os.ExpandEnv(v))
	}
	cmd.Env = env
	// let a timed out shell release its pipes promptly
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Hook:     hook,
		Phase:    phase,
		Success:  err == nil,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v", timeout)
		}
		res.Error = err
		debug.Log("hook %s (%s) failed after %v: %v", hook.Name, phase, res.Duration, err)
	} else {
		debug.LogTiming("hook "+hook.Name, res.Duration)
	}
	e.results = append(e.results, res)
	return res
}

func (e *Executor) Results() []Result { return e.results }

// Summary is a short human readable report, empty when nothing ran.
func (e *Executor) Summary() string {
	if len(e.results) == 0 {
		return ""
	}
	var ok, failed int
	var b strings.Builder
	for _, r := range e.results {
		if r.Success {
			ok++
			continue
		}
		failed++
		fmt.Fprintf(&b, "\n  %s (%s): %v", r.Hook.Name, r.Phase, r.Error)
		if r.Stderr != "" {
			stderr := r.Stderr
			if len(stderr) > maxSummaryStderr {
				stderr = stderr[:maxSummaryStderr] + "..."
			}
			fmt.Fprintf(&b, "\n    stderr: %s", stderr)
		}
	}
	return fmt.Sprintf("Hooks: %d succeeded, %d failed", ok, failed) + b.String()
}

// Load reads the hook configuration at path (empty: .flowstate/hooks.yaml in
// the working directory) and returns an executor, or nil when disabled or
// nothing is configured.
func Load(path string, sc SnapshotContext, noHooks bool) (*Executor, error) {
	if noHooks {
		return nil, nil
	}
	var opts []LoaderOption
	if path != "" {
		opts = append(opts, WithPath(path))
	}
	loader := NewLoader(opts...)
	if err := loader.Load(); err != nil {
		return nil, err
	}
	for _, w := range loader.Warnings() {
		debug.Error("hooks: %s", w)
	}
	if !loader.HasHooks() {
		return nil, nil
	}
	return NewExecutor(loader.Config(), sc), nil
}
