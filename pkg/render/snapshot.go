// Package render writes a static picture of a flowchart after a cycle: the
// cells in their current colors, a header summarizing the cycle and a legend
// with every rule's aggregate.
package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/colors"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/engine"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
)

// Options controls snapshot output.
type Options struct {
	Path   string // format inferred from the extension when Format is empty
	Format string // "svg" or "png", case-insensitive
	Title  string // defaults to the report title
	Report engine.Report
}

// resolve picks the output format and the path to write; a path without an
// extension gets .svg.
func (o Options) resolve() (format, path string, err error) {
	path = o.Path
	format = strings.ToLower(strings.TrimPrefix(o.Format, "."))
	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		format = strings.TrimPrefix(ext, ".")
		if ext == "" {
			format = "svg"
			if path != "" {
				path += ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return "", "", fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if path == "" {
		return "", "", fmt.Errorf("output path is required")
	}
	return format, path, nil
}

// FormatOf returns the format SaveSnapshot would write for path, or "" when
// it is not supported.
func FormatOf(path string) string {
	format, _, err := Options{Path: path}.resolve()
	if err != nil {
		return ""
	}
	return format
}

// SaveSnapshot renders the report and returns the path written.
func SaveSnapshot(opts Options) (string, error) {
	format, path, err := opts.resolve()
	if err != nil {
		return "", err
	}
	defer metrics.TimerWithCallback(metrics.SnapshotRender, func(d time.Duration) {
		debug.LogTiming("snapshot "+path, d)
	})()
	if len(opts.Report.Cells) == 0 {
		return "", fmt.Errorf("no cells to render")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}

	l := buildLayout(opts)
	switch format {
	case "png":
		err = renderPNG(path, l)
	default:
		err = renderSVG(path, l)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", format, err)
	}
	return path, nil
}

// --- layout ----------------------------------------------------------------

const (
	padding      = 36.0
	headerHeight = 120.0
	gridW        = 170.0
	gridH        = 70.0
	gridGap      = 40.0
	maxCanvas    = 4000.0
	legendWidth  = 220.0
	legendRow    = 16.0
)

type box struct {
	ID       string
	Label    string
	Value    string
	Level    int
	X, Y     float64
	W, H     float64
	Fill     color.NRGBA
	Stroke   color.NRGBA
	Font     color.NRGBA
	Overlay  bool
	Blinking bool
}

type legendEntry struct {
	Alias string
	Color color.NRGBA
	Level int
	Value string
}

type layout struct {
	Boxes  []box
	Legend []legendEntry
	Width  int
	Height int
	Title  string
	Lines  []string
}

// buildLayout places cells by their own geometry, shifted below the header.
// Cells without geometry go into a grid under the positioned ones; when none
// has a geometry the grid is the whole layout.
func buildLayout(opts Options) layout {
	rep := opts.Report

	var placed, loose []engine.CellReport
	for _, c := range rep.Cells {
		if c.Hidden {
			continue
		}
		if c.Geometry.Empty() {
			loose = append(loose, c)
		} else {
			placed = append(placed, c)
		}
	}

	var boxes []box
	top := padding + headerHeight
	bottom := top
	right := padding

	if len(placed) > 0 {
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, c := range placed {
			g := c.Geometry
			minX, minY = min(minX, g.X), min(minY, g.Y)
			maxX, maxY = max(maxX, g.X+g.Width), max(maxY, g.Y+g.Height)
		}
		scale := 1.0
		if span := max(maxX-minX, maxY-minY); span > maxCanvas {
			scale = maxCanvas / span
		}
		for _, c := range placed {
			g := c.Geometry
			b := newBox(c)
			b.X = padding + (g.X-minX)*scale
			b.Y = top + (g.Y-minY)*scale
			b.W, b.H = g.Width*scale, g.Height*scale
			boxes = append(boxes, b)
			right = max(right, b.X+b.W)
			bottom = max(bottom, b.Y+b.H)
		}
		bottom += gridGap
	}

	if len(loose) > 0 {
		cols := int(math.Ceil(math.Sqrt(float64(len(loose)))))
		for i, c := range loose {
			b := newBox(c)
			b.X = padding + float64(i%cols)*(gridW+gridGap)
			b.Y = bottom + float64(i/cols)*(gridH+gridGap)
			b.W, b.H = gridW, gridH
			boxes = append(boxes, b)
			right = max(right, b.X+b.W)
		}
		rows := (len(loose) + cols - 1) / cols
		bottom += float64(rows)*(gridH+gridGap) - gridGap
	}

	var legend []legendEntry
	for _, r := range rep.Rules {
		if r.Hidden {
			continue
		}
		legend = append(legend, legendEntry{
			Alias: truncate(r.Alias, 18),
			Color: paint(r.Color, colorNeutral),
			Level: r.Level,
			Value: r.Formatted,
		})
	}

	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = rep.Title
	}
	if strings.TrimSpace(title) == "" {
		title = "Flowchart Snapshot"
	}
	at := rep.LastCycle
	if at.IsZero() {
		at = rep.GeneratedAt
	}
	lines := []string{
		fmt.Sprintf("cells: %d  rules: %d  cycles: %d", len(rep.Cells), len(rep.Rules), rep.Cycles),
		fmt.Sprintf("highest level: %s", levelText(rep.MaxLevel)),
		fmt.Sprintf("at: %s", at.Format(time.DateTime)),
	}

	legendH := 30 + float64(len(legend))*legendRow
	width := max(640, int(math.Ceil(right+padding+legendWidth+20)))
	height := max(480, int(math.Ceil(max(bottom+padding, 24+legendH+padding))))
	return layout{
		Boxes:  boxes,
		Legend: legend,
		Width:  width,
		Height: height,
		Title:  title,
		Lines:  lines,
	}
}

func newBox(c engine.CellReport) box {
	label := c.Label
	if label == "" {
		label = c.ID
	}
	return box{
		ID:       c.ID,
		Label:    truncate(label, 28),
		Value:    c.Value,
		Level:    c.Level,
		Fill:     paint(c.Style["fillColor"], colorCellFill),
		Stroke:   paint(c.Style["strokeColor"], colorStroke),
		Font:     paint(c.Style["fontColor"], colorText),
		Overlay:  c.Overlay,
		Blinking: c.Blinking,
	}
}

func levelText(level int) string {
	if level < 0 {
		return "none"
	}
	return fmt.Sprint(level)
}

// --- colors & helpers ------------------------------------------------------

var (
	colorBackdrop = color.NRGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.NRGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorLegendBG = color.NRGBA{0xee, 0xee, 0xee, 0xff}
	colorCellFill = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	colorStroke   = color.NRGBA{0x22, 0x22, 0x22, 0xff}
	colorText     = color.NRGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.NRGBA{0x66, 0x66, 0x66, 0xff}
	colorNeutral  = color.NRGBA{0xcf, 0xd8, 0xdc, 0xff}
	colorOverlay  = color.NRGBA{0xd3, 0x2f, 0x2f, 0xff}
)

// paint parses a style color, falling back for unset or unreadable values.
func paint(s string, fallback color.NRGBA) color.NRGBA {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	c, err := colors.Parse(s)
	if err != nil {
		return fallback
	}
	return c.RGBA8()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// fill renders an SVG fill, with opacity when the color is translucent.
func fill(c color.NRGBA) string {
	if c.A == 0xff {
		return "fill:" + css(c)
	}
	return fmt.Sprintf("fill:%s;fill-opacity:%.2f", css(c), float64(c.A)/255)
}
