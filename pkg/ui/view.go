package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/flowstate/pkg/engine"
)

func (m Model) View() string {
	if !m.loaded {
		msg := "Loading flowchart…"
		if m.statusIsError {
			msg = m.theme.ErrorText.Render(m.status)
		}
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, msg)
	}

	listW, detailW := m.paneWidths()
	bodyH := max(m.height-2, 3)

	list := m.theme.Pane.
		Width(max(listW-2, 1)).
		Height(bodyH - 2).
		Render(m.renderList(max(listW-2, 1), bodyH-2))
	detail := m.theme.Pane.
		Width(max(detailW-2, 1)).
		Height(bodyH - 2).
		Render(m.detail.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, list, detail),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.report.Title
	if title == "" {
		title = "flowstate"
	}
	left := m.theme.Header.Render(title)
	level := m.theme.Renderer.NewStyle().
		Foreground(m.theme.LevelColor(m.report.MaxLevel)).
		Bold(true).
		Render("highest " + levelLabel(m.report.MaxLevel))
	info := m.theme.InfoText.Render(fmt.Sprintf("  %d cells · cycle %d · %s  ",
		len(m.report.Cells), m.report.Cycles, FormatTimeRel(m.lastRefresh, m.now())))
	line := left + info + level
	if m.refreshing {
		line += m.theme.MutedText.Render("  ⟳")
	}
	return truncateStyled(line, m.width)
}

// renderList draws one row per cell, scrolled so the cursor stays visible.
func (m Model) renderList(width, height int) string {
	cells := m.report.Cells
	if len(cells) == 0 {
		return m.theme.MutedText.Render("No cells in diagram")
	}
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := min(start+height, len(cells))

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, m.renderRow(cells[i], width, i == m.cursor))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderRow(c engine.CellReport, width int, selected bool) string {
	swatch := m.theme.Swatch(swatchHex(c.Style["fillColor"]))
	badge := m.theme.Renderer.NewStyle().
		Foreground(m.theme.LevelColor(c.Level)).
		Bold(true).
		Render(padRight(levelTag(c.Level), 3))

	label := c.Label
	if label == "" {
		label = c.ID
	}
	if c.Hidden {
		label = "(" + label + ")"
	}
	// swatch, badge and three separating spaces
	room := max(width-8, 4)
	value := c.Value
	if value != "" {
		value = " " + truncate(value, room/3)
	}
	labelW := room - runewidth.StringWidth(value)
	text := padRight(truncate(label, labelW), labelW) + value

	row := swatch + " " + badge + " " + text
	if selected {
		return m.theme.Selected.Render(row)
	}
	if c.Hidden {
		return m.theme.MutedText.Render(row)
	}
	return m.theme.Base.Render(row)
}

func (m Model) renderFooter() string {
	help := m.theme.MutedText.Render("j/k move · r refresh · y copy link · s snapshot · pgup/pgdn scroll · q quit")
	if m.status == "" {
		return truncateStyled(help, m.width)
	}
	status := m.theme.InfoText.Render(m.status)
	if m.statusIsError {
		status = m.theme.ErrorText.Render(m.status)
	}
	return truncateStyled(status+"  "+help, m.width)
}

func levelTag(level int) string {
	if level < 0 {
		return "-"
	}
	return fmt.Sprintf("L%d", level)
}

// truncateStyled cuts an already styled line to width cells.
func truncateStyled(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
