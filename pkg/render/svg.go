package render

import (
	"fmt"
	"io"
	"os"

	svg "github.com/ajstarks/svgo"
)

func renderSVG(path string, l layout) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeSVG(f, l); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSVG(w io.Writer, l layout) error {
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Title(l.Title)
	canvas.Rect(0, 0, l.Width, l.Height, fill(colorBackdrop))
	canvas.Roundrect(16, 16, l.Width-32, int(headerHeight-24), 10, 10, fill(colorHeaderBG))

	canvas.Text(32, 44, l.Title, fmt.Sprintf("%s;font-size:16px;font-family:monospace;font-weight:bold", fill(colorText)))
	for i, line := range l.Lines {
		canvas.Text(32, 64+20*i, line, fmt.Sprintf("%s;font-size:13px;font-family:monospace", fill(colorSubtle)))
	}
	legendSVG(canvas, l)

	for _, b := range l.Boxes {
		cellSVG(canvas, b)
	}
	canvas.End()
	return nil
}

func cellSVG(canvas *svg.SVG, b box) {
	x, y, w, h := int(b.X), int(b.Y), int(b.W), int(b.H)
	stroke := fmt.Sprintf("%s;stroke:%s;stroke-width:1.2", fill(b.Fill), css(b.Stroke))
	if b.Blinking {
		stroke += ";stroke-dasharray:6,4"
	}
	canvas.Gid("cell-" + b.ID)
	canvas.Roundrect(x, y, w, h, 8, 8, stroke)
	canvas.Text(x+10, y+min(22, h/2+4), b.Label, fmt.Sprintf("%s;font-size:13px;font-family:monospace;font-weight:bold", fill(b.Font)))
	if b.Value != "" && h >= 40 {
		canvas.Text(x+10, y+min(42, h-8), b.Value, fmt.Sprintf("%s;font-size:12px;font-family:monospace", fill(b.Font)))
	}
	if b.Overlay {
		canvas.Circle(x+w-8, y+8, 6, fmt.Sprintf("%s;stroke:%s;stroke-width:1", fill(colorOverlay), css(colorCellFill)))
	}
	canvas.Gend()
}

func legendSVG(canvas *svg.SVG, l layout) {
	if len(l.Legend) == 0 {
		return
	}
	w := int(legendWidth)
	h := int(30 + float64(len(l.Legend))*legendRow)
	x := l.Width - w - 20
	y := 24
	canvas.Roundrect(x, y, w, h, 10, 10, fmt.Sprintf("%s;stroke:%s;stroke-width:1", fill(colorLegendBG), css(colorStroke)))
	canvas.Text(x+12, y+18, "Rules", fmt.Sprintf("%s;font-size:13px;font-family:monospace;font-weight:bold", fill(colorText)))
	for i, e := range l.Legend {
		ry := y + 36 + i*int(legendRow)
		canvas.Roundrect(x+12, ry-8, 14, 14, 3, 3, fmt.Sprintf("%s;stroke:%s;stroke-width:1", fill(e.Color), css(colorStroke)))
		canvas.Text(x+32, ry+3, legendText(e), fmt.Sprintf("%s;font-size:12px;font-family:monospace", fill(colorSubtle)))
	}
}

func legendText(e legendEntry) string {
	s := fmt.Sprintf("%s L%s", e.Alias, levelText(e.Level))
	if e.Value != "" {
		s += " " + truncate(e.Value, 10)
	}
	return s
}
