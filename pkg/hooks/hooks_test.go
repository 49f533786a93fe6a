package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeHooksFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".flowstate", "hooks.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSnapshotContextToEnv(t *testing.T) {
	sc := SnapshotContext{
		SnapshotPath: "/tmp/board.svg",
		Format:       "svg",
		CellCount:    12,
		MaxLevel:     2,
		Timestamp:    time.Date(2025, 11, 30, 10, 30, 0, 0, time.UTC),
	}
	want := []string{
		"FS_SNAPSHOT_PATH=/tmp/board.svg",
		"FS_SNAPSHOT_FORMAT=svg",
		"FS_CELL_COUNT=12",
		"FS_MAX_LEVEL=2",
		"FS_TIMESTAMP=2025-11-30T10:30:00Z",
	}
	if got := sc.ToEnv(); !slices.Equal(got, want) {
		t.Errorf("ToEnv() = %v, want %v", got, want)
	}
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	writeHooksFile(t, dir, `
hooks:
  pre-snapshot:
    - name: validate
      command: echo "validating"
      timeout: 5s
  post-snapshot:
    - command: echo "done"
      timeout: 2
      env:
        CUSTOM_VAR: custom_value
    - command: "   "
    - name: odd
      command: "true"
      on_error: explode
`)
	l := NewLoader(WithProjectDir(dir))
	if err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if !l.HasHooks() {
		t.Fatal("expected hooks to be loaded")
	}

	pre := l.GetHooks(PreSnapshot)
	if len(pre) != 1 || pre[0].Timeout != 5*time.Second || pre[0].OnError != OnErrorFail {
		t.Errorf("pre-snapshot = %+v", pre)
	}
	post := l.GetHooks(PostSnapshot)
	if len(post) != 2 {
		t.Fatalf("post-snapshot = %+v", post)
	}
	if post[0].Name != "post-snapshot-1" || post[0].Timeout != 2*time.Second || post[0].OnError != OnErrorContinue {
		t.Errorf("defaults not applied: %+v", post[0])
	}
	if post[0].Env["CUSTOM_VAR"] != "custom_value" {
		t.Errorf("env = %v", post[0].Env)
	}
	if post[1].OnError != OnErrorContinue {
		t.Errorf("unknown on_error kept: %q", post[1].OnError)
	}
	if len(l.Warnings()) != 2 {
		t.Errorf("warnings = %v", l.Warnings())
	}
	if l.GetHooks(Phase("unknown")) != nil {
		t.Error("unknown phase returned hooks")
	}
}

func TestLoader_MissingAndInvalid(t *testing.T) {
	l := NewLoader(WithProjectDir(t.TempDir()))
	if err := l.Load(); err != nil {
		t.Fatalf("missing config: %v", err)
	}
	if l.HasHooks() {
		t.Error("expected no hooks when config is missing")
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("hooks:\n  pre-snapshot:\n    - name: [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l = NewLoader(WithPath(path), WithProjectDir("/nonexistent"))
	if l.Path() != path {
		t.Errorf("Path() = %s", l.Path())
	}
	if err := l.Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}

	var h Hook
	if err := yaml.Unmarshal([]byte("name: bad\ntimeout: nope\ncommand: echo hi\n"), &h); err == nil {
		t.Error("expected error for invalid duration")
	}
}

// run executes both phases.
func run(cfg *Config, sc SnapshotContext) (*Executor, error) {
	e := NewExecutor(cfg, sc)
	return e, errors.Join(
		e.RunPreSnapshot(context.Background()),
		e.RunPostSnapshot(context.Background()),
	)
}

func TestExecutor_EnvAndStdout(t *testing.T) {
	t.Setenv("TEST_HOOK_VAR", "expanded")
	cfg := &Config{Hooks: ByPhase{
		PostSnapshot: []Hook{{
			Name:    "env",
			Command: `echo "$FS_SNAPSHOT_PATH $FS_CELL_COUNT $FS_MAX_LEVEL $CUSTOM"`,
			Timeout: 5 * time.Second,
			Env:     map[string]string{"CUSTOM": "${TEST_HOOK_VAR}"},
		}},
	}}
	e, err := run(cfg, SnapshotContext{SnapshotPath: "/out/board.png", CellCount: 3, MaxLevel: 1})
	if err != nil {
		t.Fatal(err)
	}
	res := e.Results()
	if len(res) != 1 || !res[0].Success || res[0].Stdout != "/out/board.png 3 1 expanded" {
		t.Errorf("results = %+v", res)
	}
}

func TestExecutor_PreSnapshotStopsOnFail(t *testing.T) {
	cfg := &Config{Hooks: ByPhase{
		PreSnapshot: []Hook{
			{Name: "fail-fast", Command: "exit 1", Timeout: time.Second, OnError: OnErrorFail},
			{Name: "never", Command: "echo nope", Timeout: time.Second, OnError: OnErrorFail},
		},
	}}
	e := NewExecutor(cfg, SnapshotContext{})
	if err := e.RunPreSnapshot(context.Background()); err == nil || !strings.Contains(err.Error(), "fail-fast") {
		t.Fatalf("error = %v", err)
	}
	if len(e.Results()) != 1 {
		t.Errorf("expected only the first hook to run, got %d", len(e.Results()))
	}
}

func TestExecutor_PostSnapshotRunsAll(t *testing.T) {
	cfg := &Config{Hooks: ByPhase{
		PostSnapshot: []Hook{
			{Name: "soft", Command: "exit 3", Timeout: time.Second, OnError: OnErrorContinue},
			{Name: "hard", Command: "exit 1", Timeout: time.Second, OnError: OnErrorFail},
			{Name: "after", Command: "echo ok", Timeout: time.Second, OnError: OnErrorContinue},
		},
	}}
	e := NewExecutor(cfg, SnapshotContext{})
	err := e.RunPostSnapshot(context.Background())
	if err == nil || strings.Contains(err.Error(), "soft") || !strings.Contains(err.Error(), "hard") {
		t.Errorf("error = %v", err)
	}
	res := e.Results()
	if len(res) != 3 || res[2].Stdout != "ok" {
		t.Errorf("results = %+v", res)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	cfg := &Config{Hooks: ByPhase{
		PreSnapshot: []Hook{{Name: "slow", Command: "sleep 10", Timeout: 100 * time.Millisecond, OnError: OnErrorFail}},
	}}
	e := NewExecutor(cfg, SnapshotContext{})
	err := e.RunPreSnapshot(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v", err)
	}
	if d := e.Results()[0].Duration; d < 100*time.Millisecond || d > 5*time.Second {
		t.Errorf("duration = %v", d)
	}
}

func TestExecutor_CommandNotFound(t *testing.T) {
	cfg := &Config{Hooks: ByPhase{
		PreSnapshot: []Hook{{Name: "missing", Command: "definitely-not-a-real-command-xyz", Timeout: time.Second, OnError: OnErrorFail}},
	}}
	e := NewExecutor(cfg, SnapshotContext{})
	if err := e.RunPreSnapshot(context.Background()); err == nil {
		t.Fatal("expected error for missing command")
	}
	if res := e.Results(); len(res) != 1 || res[0].Success || res[0].Stderr == "" {
		t.Errorf("results = %+v", res)
	}
}

func TestExecutor_Summary(t *testing.T) {
	cfg := &Config{Hooks: ByPhase{
		PreSnapshot:  []Hook{{Name: "ok", Command: "echo ok", Timeout: time.Second, OnError: OnErrorContinue}},
		PostSnapshot: []Hook{{Name: "noisy", Command: "printf '%0300d' 0 1>&2; exit 1", Timeout: time.Second, OnError: OnErrorContinue}},
	}}
	e, _ := run(cfg, SnapshotContext{})
	summary := e.Summary()
	if !strings.Contains(summary, "1 succeeded") || !strings.Contains(summary, "1 failed") {
		t.Errorf("summary = %s", summary)
	}
	for _, line := range strings.Split(summary, "\n") {
		if strings.Contains(line, "stderr:") && (len(line) > 230 || !strings.HasSuffix(line, "...")) {
			t.Errorf("stderr not truncated: %q", line)
		}
	}
	if NewExecutor(nil, SnapshotContext{}).Summary() != "" {
		t.Error("summary of an idle executor should be empty")
	}
}

func TestLoad(t *testing.T) {
	e, err := Load("", SnapshotContext{}, true)
	if e != nil || err != nil {
		t.Fatalf("noHooks should short-circuit, got %v, %v", e, err)
	}

	e, err = Load(filepath.Join(t.TempDir(), "none.yaml"), SnapshotContext{}, false)
	if e != nil || err != nil {
		t.Fatalf("missing config should yield no executor, got %v, %v", e, err)
	}

	path := writeHooksFile(t, t.TempDir(), "hooks:\n  post-snapshot:\n    - command: echo hi\n")
	e, err = Load(path, SnapshotContext{CellCount: 1}, false)
	if err != nil || e == nil {
		t.Fatalf("Load = %v, %v", e, err)
	}
	if len(e.config.Hooks.PostSnapshot) != 1 || len(e.Results()) != 0 {
		t.Errorf("executor not initialized: %+v", e.config)
	}
}
