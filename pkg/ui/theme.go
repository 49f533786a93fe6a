package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile, computed once so
// style helpers can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Level badges; levels above Critical use Critical.
	Normal   lipgloss.AdaptiveColor
	Warning  lipgloss.AdaptiveColor
	Critical lipgloss.AdaptiveColor

	Base      lipgloss.Style
	Selected  lipgloss.Style
	Header    lipgloss.Style
	Pane      lipgloss.Style
	MutedText lipgloss.Style
	ErrorText lipgloss.Style
	InfoText  lipgloss.Style
}

// DefaultTheme returns the Dracula-inspired adaptive theme. mode "dark" or
// "light" pins the palette; anything else follows the terminal background.
func DefaultTheme(r *lipgloss.Renderer, mode string) Theme {
	switch mode {
	case "dark":
		r.SetHasDarkBackground(true)
	case "light":
		r.SetHasDarkBackground(false)
	}

	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},

		Normal:   lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"},
		Warning:  lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"},
		Critical: lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})
	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(t.Primary).
		Bold(true)
	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)
	t.Pane = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border)
	t.MutedText = r.NewStyle().Foreground(t.Muted)
	t.ErrorText = r.NewStyle().Foreground(t.Critical).Bold(true)
	t.InfoText = r.NewStyle().Foreground(t.Secondary)
	return t
}

// LevelColor maps a threshold level to a badge color. Negative levels mean
// no rule matched.
func (t Theme) LevelColor(level int) lipgloss.AdaptiveColor {
	switch {
	case level < 0:
		return t.Subtext
	case level == 0:
		return t.Normal
	case level == 1:
		return t.Warning
	default:
		return t.Critical
	}
}

// Swatch paints a two-cell block in a cell's current color.
func (t Theme) Swatch(hex string) string {
	if hex == "" {
		return t.MutedText.Render("··")
	}
	return t.Renderer.NewStyle().Foreground(ThemeFg(hex)).Render("██")
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout), "dark")
}
