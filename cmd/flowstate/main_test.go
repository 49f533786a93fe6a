package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/engine"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
	"github.com/vanderheijden86/flowstate/pkg/testutil"
)

const rulesYAML = `
rules:
  - alias: cpu
    pattern: cpu-.*
    invert: true
    numberTH:
      - {color: green, value: 0}
      - {color: orange, value: 50}
      - {color: red, value: 80}
    maps:
      shapes:
        dataList:
          - {pattern: web, style: fillColor}
`

const diagramYAML = `
title: Hosts
cells:
  - id: web
    label: Web
    style: {fillColor: "#eeeeee"}
    geometry: {x: 10, y: 20, width: 120, height: 60}
  - id: db
    label: DB
    style: {fillColor: "#eeeeee"}
    geometry: {x: 200, y: 20, width: 120, height: 60}
`

type fixture struct {
	dir     string
	rules   string
	diagram string
	data    string
}

func newFixture(t *testing.T, cpu float64) fixture {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	dir := t.TempDir()
	sample := `{"metric":"cpu-1","time":1718186400000,"value":` + formatFloat(cpu) + "}\n"
	return fixture{
		dir:     dir,
		rules:   testutil.WriteFile(t, dir, "rules.yaml", rulesYAML),
		diagram: testutil.WriteFile(t, dir, "diagram.yaml", diagramYAML),
		data:    testutil.WriteFile(t, dir, "data/metrics.jsonl", sample),
	}
}

func formatFloat(v float64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func (f fixture) args(extra ...string) []string {
	return append([]string{
		"--config", filepath.Join(f.dir, "none.yaml"),
		"--rules", f.rules,
		"--diagram", f.diagram,
		"--data", f.data,
	}, extra...)
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_JSONReport(t *testing.T) {
	f := newFixture(t, 95)
	code, out, errOut := runCLI(t, f.args("--json")...)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var rep engine.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("stdout is not a report: %v\n%s", err, out)
	}
	if rep.Title != "Hosts" || rep.MaxLevel != 2 || len(rep.Cells) != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Cells[0].Style["fillColor"] != "red" || rep.Cells[1].Level != -1 {
		t.Errorf("cells = %+v", rep.Cells)
	}
}

func TestRun_DefaultsToJSONWhenNotATerminal(t *testing.T) {
	f := newFixture(t, 60)
	code, out, _ := runCLI(t, f.args()...)
	if code != exitOK || !strings.Contains(out, `"orange"`) {
		t.Errorf("exit %d, stdout:\n%s", code, out)
	}
}

func TestRun_Snapshot(t *testing.T) {
	f := newFixture(t, 95)
	out := filepath.Join(f.dir, "out", "board.svg")
	hooksFile := testutil.WriteFile(t, f.dir, "hooks.yaml", `
hooks:
  post-snapshot:
    - name: record
      command: echo "$FS_SNAPSHOT_PATH $FS_MAX_LEVEL" > `+filepath.Join(f.dir, "hook.txt")+`
`)
	code, stdout, errOut := runCLI(t, f.args("--snapshot", out, "--hooks", hooksFile)...)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if stdout != "" {
		t.Errorf("snapshot without --json printed a report:\n%s", stdout)
	}
	if !strings.Contains(errOut, "Snapshot written to "+out) {
		t.Errorf("stderr = %q", errOut)
	}
	svg, err := os.ReadFile(out)
	if err != nil || !strings.Contains(string(svg), "fill:#ff0000") {
		t.Errorf("snapshot missing red web cell: %v", err)
	}
	hook, err := os.ReadFile(filepath.Join(f.dir, "hook.txt"))
	if err != nil || strings.TrimSpace(string(hook)) != out+" 2" {
		t.Errorf("hook output = %q, %v", hook, err)
	}

	_ = os.Remove(filepath.Join(f.dir, "hook.txt"))
	if code, _, errOut := runCLI(t, f.args("--snapshot", out, "--hooks", hooksFile, "--no-hooks")...); code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "hook.txt")); !os.IsNotExist(err) {
		t.Error("--no-hooks still ran hooks")
	}
}

func TestRun_DebugTrace(t *testing.T) {
	f := newFixture(t, 95)
	var trace bytes.Buffer
	debug.SetEnabled(true)
	debug.SetOutput(&trace)
	metrics.SetEnabled(true)
	t.Cleanup(func() {
		debug.SetEnabled(false)
		debug.SetOutput(os.Stderr)
	})

	out := filepath.Join(f.dir, "board.svg")
	if code, _, errOut := runCLI(t, f.args("--snapshot", out, "--no-hooks")...); code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	got := trace.String()
	for _, want := range []string{"=== cycle 1 ===", "-> flowchart refresh", "<- flowchart refresh", "snapshot " + out + " took", "=== timings ===", "cell_cycle:", "snapshot_render:"} {
		if !strings.Contains(got, want) {
			t.Errorf("trace missing %q:\n%s", want, got)
		}
	}
}

func TestRun_Usage(t *testing.T) {
	f := newFixture(t, 1)
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown flag", []string{"--nope"}, exitUsage},
		{"stray argument", f.args("extra"), exitUsage},
		{"missing rules", []string{"--config", filepath.Join(f.dir, "none.yaml"), "--diagram", f.diagram, "--data", f.data}, exitUsage},
		{"unknown profile", f.args("--profile", "prod"), exitUsage},
		{"missing data", append(f.args(), "--data", filepath.Join(f.dir, "gone.json")), exitError},
		{"bad rules", []string{"--config", filepath.Join(f.dir, "none.yaml"), "--rules", f.diagram + ".missing", "--diagram", f.diagram, "--data", f.data}, exitError},
		{"help", []string{"-h"}, exitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, errOut := runCLI(t, tt.args...); code != tt.code {
				t.Errorf("exit %d, want %d: %s", code, tt.code, errOut)
			}
		})
	}

	code, out, _ := runCLI(t, "--version")
	if code != exitOK || !strings.HasPrefix(out, "flowstate ") {
		t.Errorf("--version = %d %q", code, out)
	}
}

func TestResolveConfig_ProfileAndFlags(t *testing.T) {
	f := newFixture(t, 1)
	cfgPath := testutil.WriteFile(t, f.dir, "config.yaml", `
rules: rules.yaml
diagram: diagram.yaml
sources: [data]
refresh_interval: 10s
profiles:
  - name: alt
    rules: alt-rules.yaml
`)
	cfg, err := resolveConfig(options{configPath: cfgPath, profile: "alt", interval: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules != filepath.Join(f.dir, "alt-rules.yaml") || cfg.Diagram != f.diagram {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RefreshInterval != time.Minute {
		t.Errorf("interval = %v", cfg.RefreshInterval)
	}

	cfg, err = resolveConfig(options{configPath: cfgPath, rules: "/x.yaml", data: stringList{"/a.json", "/b.db"}, watch: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules != "/x.yaml" || len(cfg.Sources) != 2 || !cfg.Watch {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestApp_ReloadAndDirectorySources(t *testing.T) {
	f := newFixture(t, 60)
	cfg, err := resolveConfig(options{
		configPath: filepath.Join(f.dir, "none.yaml"),
		rules:      f.rules,
		diagram:    f.diagram,
		data:       stringList{filepath.Dir(f.data)},
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()
	if len(a.sources) != 1 || a.sources[0].Path != f.data {
		t.Fatalf("sources = %v", a.sources)
	}
	if paths := a.watchPaths(); len(paths) != 3 {
		t.Errorf("watch paths = %v", paths)
	}

	ctx := context.Background()
	rep, err := a.refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Cells[0].Style["fillColor"] != "orange" {
		t.Fatalf("web = %+v", rep.Cells[0])
	}

	// retarget the rule to db
	testutil.WriteFile(t, f.dir, "rules.yaml", strings.Replace(rulesYAML, "pattern: web", "pattern: db", 1))
	if err := a.reload([]string{f.rules}); err != nil {
		t.Fatal(err)
	}
	rep, err = a.refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Cells[0].Style["fillColor"] != "#eeeeee" || rep.Cells[1].Style["fillColor"] != "orange" {
		t.Errorf("after rules reload: %+v", rep.Cells)
	}

	// a broken rules file keeps the running rules
	testutil.WriteFile(t, f.dir, "rules.yaml", "rules: [{alias: x, pattern: '(', numberTH: nope}]")
	if err := a.reload([]string{f.rules}); err == nil {
		t.Error("broken rules accepted")
	}

	testutil.WriteFile(t, f.dir, "diagram.yaml", diagramYAML+`  - id: queue
    label: Queue
`)
	if err := a.reload([]string{f.diagram}); err != nil {
		t.Fatal(err)
	}
	rep, err = a.refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Cells) != 3 {
		t.Errorf("cells after diagram reload = %d", len(rep.Cells))
	}
}

func TestApp_RefreshAllSourcesFailed(t *testing.T) {
	f := newFixture(t, 1)
	cfg, err := resolveConfig(options{configPath: filepath.Join(f.dir, "none.yaml"), rules: f.rules, diagram: f.diagram, data: stringList{f.data}})
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()
	if err := os.Remove(f.data); err != nil {
		t.Fatal(err)
	}
	if _, err := a.refresh(context.Background()); err == nil {
		t.Error("expected an error when every source fails")
	}
}
