// Package ui is the live terminal view of a flowchart: every cell with its
// current color and level, and a detail pane with the cell's tooltip.
package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/engine"
	"github.com/vanderheijden86/flowstate/pkg/watcher"
)

const (
	defaultWidth   = 120
	defaultHeight  = 40
	refreshTimeout = time.Minute
)

// RefreshFunc loads fresh metrics, runs one cycle and reports the result.
type RefreshFunc func(ctx context.Context) (engine.Report, error)

// ReloadFunc re-reads the rule or diagram files among paths.
type ReloadFunc func(paths []string) error

// SnapshotFunc writes a picture of the flowchart and returns its path.
type SnapshotFunc func(ctx context.Context) (string, error)

type Options struct {
	Refresh       RefreshFunc
	Reload        ReloadFunc       // optional
	Snapshot      SnapshotFunc     // optional; bound to s
	Watcher       *watcher.Watcher // optional; changes trigger Reload then Refresh
	Interval      time.Duration    // periodic refresh; 0 disables
	Theme         string           // dark, light or auto
	SplitRatio    float64          // list pane share of the width
	MarkdownStyle string           // glamour style; derived from Theme when empty
}

// ReportMsg carries the outcome of a refresh.
type ReportMsg struct {
	Report engine.Report
	Err    error
}

// FileChangedMsg is sent when watched files change.
type FileChangedMsg struct {
	Paths []string
}

type snapshotMsg struct {
	path string
	err  error
}

type tickMsg struct{}

// Model is the Bubble Tea model.
type Model struct {
	opts  Options
	theme Theme

	report      engine.Report
	loaded      bool
	refreshing  bool
	lastRefresh time.Time
	cursor      int

	width  int
	height int
	detail viewport.Model
	md     *glamour.TermRenderer
	mdWrap int

	status        string
	statusIsError bool

	now  func() time.Time
	copy func(string) error
}

func NewModel(opts Options) Model {
	if opts.SplitRatio < 0.2 || opts.SplitRatio > 0.8 {
		opts.SplitRatio = 0.4
	}
	m := Model{
		opts:   opts,
		theme:  DefaultTheme(lipgloss.NewRenderer(os.Stdout), opts.Theme),
		width:  defaultWidth,
		height: defaultHeight,
		now:    time.Now,
		copy:   clipboard.WriteAll,
	}
	m.layout()
	return m
}

// Init starts the first refresh, the refresh ticker and the file watch.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshCmd()}
	if m.opts.Interval > 0 {
		cmds = append(cmds, tickCmd(m.opts.Interval))
	}
	if m.opts.Watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
	}
	return tea.Batch(cmds...)
}

// WatchFileCmd waits for the next batch of changed files.
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		return FileChangedMsg{Paths: <-w.Changed()}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *Model) refreshCmd() tea.Cmd {
	if m.opts.Refresh == nil {
		return nil
	}
	m.refreshing = true
	refresh := m.opts.Refresh
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		rep, err := refresh(ctx)
		return ReportMsg{Report: rep, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.renderDetail()

	case ReportMsg:
		m.refreshing = false
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("Refresh failed: %v", msg.Err), true)
			break
		}
		m.report = msg.Report
		m.loaded = true
		m.lastRefresh = m.now()
		m.cursor = min(m.cursor, max(len(m.report.Cells)-1, 0))
		m.setStatus(fmt.Sprintf("%d cells, highest level %s", len(m.report.Cells), levelLabel(m.report.MaxLevel)), false)
		m.renderDetail()

	case FileChangedMsg:
		if m.opts.Reload != nil {
			if err := m.opts.Reload(msg.Paths); err != nil {
				m.setStatus(fmt.Sprintf("Reload failed: %v", err), true)
			} else {
				m.setStatus("Reloaded "+baseNames(msg.Paths), false)
			}
		}
		if !m.refreshing {
			cmds = append(cmds, m.refreshCmd())
		}
		if m.opts.Watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
		}

	case snapshotMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Snapshot failed: %v", msg.err), true)
		} else {
			m.setStatus("Snapshot written to "+msg.path, false)
		}

	case tickMsg:
		if !m.refreshing {
			cmds = append(cmds, m.refreshCmd())
		}
		cmds = append(cmds, tickCmd(m.opts.Interval))

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.report.Cells)
	prev := m.cursor

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(n-1, 0)
	case "r":
		if m.refreshing {
			return m, nil
		}
		m.setStatus("Refreshing…", false)
		return m, m.refreshCmd()
	case "y":
		m.copyLink()
	case "s":
		if m.opts.Snapshot == nil {
			return m, nil
		}
		m.setStatus("Writing snapshot…", false)
		snapshot := m.opts.Snapshot
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			path, err := snapshot(ctx)
			return snapshotMsg{path: path, err: err}
		}
	case "pgdown", "pgup", "ctrl+d", "ctrl+u":
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	if m.cursor != prev {
		m.renderDetail()
		m.detail.GotoTop()
	}
	return m, nil
}

func (m *Model) copyLink() {
	c, ok := m.Selected()
	if !ok {
		return
	}
	if c.Link == "" {
		m.setStatus(fmt.Sprintf("No link on %s", c.ID), true)
		return
	}
	if err := m.copy(c.Link); err != nil {
		debug.Log("clipboard: %v", err)
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.setStatus(fmt.Sprintf("Copied link of %s", c.ID), false)
}

// Selected returns the cell under the cursor.
func (m Model) Selected() (engine.CellReport, bool) {
	if m.cursor < 0 || m.cursor >= len(m.report.Cells) {
		return engine.CellReport{}, false
	}
	return m.report.Cells[m.cursor], true
}

func (m *Model) setStatus(s string, isError bool) {
	m.status = s
	m.statusIsError = isError
}

// layout sizes the detail pane and rebuilds the markdown renderer when its
// wrap width changes.
func (m *Model) layout() {
	_, detailW := m.paneWidths()
	inner := max(detailW-2, 10)
	bodyH := max(m.height-2, 3)
	m.detail = viewport.New(inner, bodyH-2)

	if m.md != nil && m.mdWrap == inner-2 {
		return
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(inner - 2)}
	switch style := m.markdownStyle(); style {
	case "":
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		debug.Log("glamour: %v", err)
		md = nil
	}
	m.md, m.mdWrap = md, inner-2
}

func (m Model) markdownStyle() string {
	if m.opts.MarkdownStyle != "" {
		return m.opts.MarkdownStyle
	}
	switch m.opts.Theme {
	case "dark", "light":
		return m.opts.Theme
	}
	return ""
}

func (m Model) paneWidths() (int, int) {
	list := int(float64(m.width) * m.opts.SplitRatio)
	return list, m.width - list
}

func (m *Model) renderDetail() {
	c, ok := m.Selected()
	if !ok {
		m.detail.SetContent("")
		return
	}
	src := cellMarkdown(c)
	if m.md != nil {
		if out, err := m.md.Render(src); err == nil {
			src = strings.TrimRight(out, "\n ")
		}
	}
	m.detail.SetContent(src)
}

// cellMarkdown describes a cell for the detail pane.
func cellMarkdown(c engine.CellReport) string {
	var b strings.Builder
	title := c.Label
	if title == "" {
		title = c.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "`%s` · level **%s**", c.ID, levelLabel(c.Level))
	if c.Value != "" {
		fmt.Fprintf(&b, " · value **%s**", c.Value)
	}
	b.WriteString("\n\n")
	if c.Link != "" {
		fmt.Fprintf(&b, "**Link:** %s\n\n", c.Link)
	}
	if len(c.MatchedRules) > 0 {
		fmt.Fprintf(&b, "**Rules:** %s\n\n", strings.Join(c.MatchedRules, ", "))
	}
	if len(c.MatchedMetrics) > 0 {
		fmt.Fprintf(&b, "**Metrics:** %s\n\n", strings.Join(c.MatchedMetrics, ", "))
	}
	var flags []string
	if c.Hidden {
		flags = append(flags, "hidden")
	}
	if c.Overlay {
		flags = append(flags, "warning icon")
	}
	if c.Blinking {
		flags = append(flags, "blinking")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "_%s_\n\n", strings.Join(flags, ", "))
	}
	if !c.Tooltip.Empty() {
		b.WriteString("---\n\n")
		b.WriteString(c.Tooltip.Markdown())
		b.WriteString("\n")
	}
	return b.String()
}

func levelLabel(level int) string {
	if level < 0 {
		return "-"
	}
	return fmt.Sprint(level)
}

func baseNames(paths []string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}
