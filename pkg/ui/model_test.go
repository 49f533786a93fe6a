package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/engine"
)

func testReport() engine.Report {
	tip := diagram.NewTooltip("v")
	tip.Add(diagram.TooltipEntry{Rule: "cpu", Label: "CPU", Value: "95.00", Level: 2})
	return engine.Report{
		Title:    "Hosts",
		Cycles:   4,
		MaxLevel: 2,
		Cells: []engine.CellReport{
			{
				ID: "web", Label: "Web", Level: 2, Value: "95.00", Link: "https://grafana/web",
				Style:        map[string]string{"fillColor": "#ff0000"},
				MatchedRules: []string{"cpu"},
				Tooltip:      tip,
				Overlay:      true,
			},
			{ID: "db", Label: "DB", Level: 0},
			{ID: "ghost", Level: -1, Hidden: true},
		},
	}
}

func newTestModel(t *testing.T, opts Options) Model {
	t.Helper()
	if opts.MarkdownStyle == "" {
		opts.MarkdownStyle = "notty"
	}
	m := NewModel(opts)
	m.theme = TestTheme()
	m.now = func() time.Time { return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC) }
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "pgdown":
		return tea.KeyMsg{Type: tea.KeyPgDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T, opts Options) Model {
	t.Helper()
	m, _ := update(t, newTestModel(t, opts), ReportMsg{Report: testReport()})
	return m
}

func TestModel_ReportMsg(t *testing.T) {
	m := newTestModel(t, Options{})
	if !strings.Contains(m.View(), "Loading") {
		t.Error("expected loading view before the first report")
	}

	m, _ = update(t, m, ReportMsg{Report: testReport()})
	if !m.loaded || m.lastRefresh.IsZero() {
		t.Fatal("report not applied")
	}
	if m.status != "3 cells, highest level 2" || m.statusIsError {
		t.Errorf("status = %q", m.status)
	}
	c, ok := m.Selected()
	if !ok || c.ID != "web" {
		t.Errorf("selected = %+v", c)
	}

	view := m.View()
	for _, want := range []string{"Hosts", "Web", "DB", "L2", "cycle 4"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if !strings.Contains(m.detail.View(), "CPU") {
		t.Errorf("detail missing tooltip:\n%s", m.detail.View())
	}

	m, _ = update(t, m, ReportMsg{Err: errors.New("source down")})
	if !m.statusIsError || !strings.Contains(m.status, "source down") {
		t.Errorf("status = %q", m.status)
	}
	if len(m.report.Cells) != 3 {
		t.Error("failed refresh dropped the last report")
	}
}

func TestModel_CursorClampedOnShrink(t *testing.T) {
	m := loaded(t, Options{})
	m, _ = update(t, m, key("G"))
	if m.cursor != 2 {
		t.Fatalf("cursor = %d", m.cursor)
	}
	rep := testReport()
	rep.Cells = rep.Cells[:1]
	m, _ = update(t, m, ReportMsg{Report: rep})
	if m.cursor != 0 {
		t.Errorf("cursor = %d after shrink", m.cursor)
	}
}

func TestModel_Navigation(t *testing.T) {
	m := loaded(t, Options{})
	steps := []struct {
		key  string
		want int
	}{
		{"j", 1},
		{"down", 2},
		{"j", 2},
		{"k", 1},
		{"up", 0},
		{"k", 0},
		{"G", 2},
		{"g", 0},
	}
	for _, s := range steps {
		m, _ = update(t, m, key(s.key))
		if m.cursor != s.want {
			t.Fatalf("after %q cursor = %d, want %d", s.key, m.cursor, s.want)
		}
	}

	m, _ = update(t, m, key("j"))
	if !strings.Contains(m.detail.View(), "DB") {
		t.Errorf("detail not following cursor:\n%s", m.detail.View())
	}
	m, _ = update(t, m, key("pgdown"))
	if m.cursor != 1 {
		t.Error("scrolling the detail moved the cursor")
	}
}

func TestModel_Quit(t *testing.T) {
	m := loaded(t, Options{})
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := update(t, m, key(k))
		if cmd == nil {
			t.Fatalf("%s: no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s did not quit", k)
		}
	}
}

func TestModel_RefreshKey(t *testing.T) {
	calls := 0
	m := loaded(t, Options{Refresh: func(ctx context.Context) (engine.Report, error) {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Error("refresh without deadline")
		}
		rep := testReport()
		rep.Cycles = 5
		return rep, nil
	}})

	m, cmd := update(t, m, key("r"))
	if cmd == nil || !m.refreshing {
		t.Fatal("r did not start a refresh")
	}
	if _, again := update(t, m, key("r")); again != nil {
		t.Error("second refresh started while one is running")
	}

	msg, ok := cmd().(ReportMsg)
	if !ok || calls != 1 {
		t.Fatalf("refresh msg = %T, calls = %d", msg, calls)
	}
	m, _ = update(t, m, msg)
	if m.refreshing || m.report.Cycles != 5 {
		t.Errorf("refreshing = %v cycles = %d", m.refreshing, m.report.Cycles)
	}
}

func TestModel_FileChanged(t *testing.T) {
	var reloaded []string
	m := loaded(t, Options{
		Refresh: func(context.Context) (engine.Report, error) { return testReport(), nil },
		Reload: func(paths []string) error {
			reloaded = paths
			if strings.HasSuffix(paths[0], "bad.yaml") {
				return errors.New("line 3: bad op")
			}
			return nil
		},
	})

	m, cmd := update(t, m, FileChangedMsg{Paths: []string{"/etc/flowstate/rules.yaml"}})
	if len(reloaded) != 1 || m.status != "Reloaded rules.yaml" {
		t.Errorf("reloaded = %v status = %q", reloaded, m.status)
	}
	if cmd == nil {
		t.Fatal("file change did not refresh")
	}
	if _, ok := cmd().(ReportMsg); !ok {
		t.Error("expected a refresh command")
	}

	m.refreshing = false
	m, _ = update(t, m, FileChangedMsg{Paths: []string{"/x/bad.yaml"}})
	if !m.statusIsError || !strings.Contains(m.status, "bad op") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_CopyLink(t *testing.T) {
	var copied string
	m := loaded(t, Options{})
	m.copy = func(s string) error { copied = s; return nil }

	m, _ = update(t, m, key("y"))
	if copied != "https://grafana/web" || m.statusIsError {
		t.Errorf("copied %q status %q", copied, m.status)
	}

	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("y"))
	if !m.statusIsError || !strings.Contains(m.status, "No link on db") {
		t.Errorf("status = %q", m.status)
	}

	m, _ = update(t, m, key("k"))
	m.copy = func(string) error { return errors.New("no clipboard") }
	m, _ = update(t, m, key("y"))
	if !m.statusIsError || !strings.Contains(m.status, "no clipboard") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_Snapshot(t *testing.T) {
	m := loaded(t, Options{})
	if _, cmd := update(t, m, key("s")); cmd != nil {
		t.Error("s without a snapshot func returned a command")
	}

	m = loaded(t, Options{Snapshot: func(context.Context) (string, error) { return "/tmp/board.svg", nil }})
	m, cmd := update(t, m, key("s"))
	if cmd == nil {
		t.Fatal("s did not start a snapshot")
	}
	m, _ = update(t, m, cmd())
	if m.status != "Snapshot written to /tmp/board.svg" {
		t.Errorf("status = %q", m.status)
	}

	m, _ = update(t, m, snapshotMsg{err: errors.New("disk full")})
	if !m.statusIsError || !strings.Contains(m.status, "disk full") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_WindowSize(t *testing.T) {
	m := loaded(t, Options{SplitRatio: 0.5})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	if m.detail.Width != 38 || m.detail.Height != 16 {
		t.Errorf("detail = %dx%d", m.detail.Width, m.detail.Height)
	}
	for i, line := range strings.Split(m.View(), "\n") {
		if w := len([]rune(stripANSI(line))); w > 80 {
			t.Errorf("line %d is %d wide", i, w)
		}
	}
}

func TestCellMarkdown(t *testing.T) {
	md := cellMarkdown(testReport().Cells[0])
	for _, want := range []string{"# Web", "`web` · level **2** · value **95.00**", "**Link:** https://grafana/web", "**Rules:** cpu", "_warning icon_", "- **CPU**: 95.00"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	md = cellMarkdown(testReport().Cells[2])
	if !strings.Contains(md, "# ghost") || !strings.Contains(md, "level **-**") || strings.Contains(md, "---") {
		t.Errorf("markdown = %s", md)
	}
}

func TestSwatchHex(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"#ff0000", "#ff0000"},
		{"rgba(0, 128, 0, 0.5)", "#008000"},
		{"transparent", ""},
		{"nope", ""},
	}
	for _, tt := range tests {
		if got := swatchHex(tt.in); got != tt.want {
			t.Errorf("swatchHex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimeRel(t *testing.T) {
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-2 * time.Second), "now"},
		{now.Add(-30 * time.Second), "30s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := FormatTimeRel(tt.at, now); got != tt.want {
			t.Errorf("FormatTimeRel(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestTruncateAndPad(t *testing.T) {
	if got := truncate("日本語タイトル", 7); got != "日本語…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := padRight("ab", 4); got != "ab  " {
		t.Errorf("padRight = %q", got)
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	esc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			esc = true
		case esc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				esc = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
