package render

import (
	"git.sr.ht/~sbinet/gg"
	"golang.org/x/image/font/basicfont"
)

func renderPNG(path string, l layout) error {
	return drawPNG(l).SavePNG(path)
}

func drawPNG(l layout) *gg.Context {
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(l.Width)-32, headerHeight-24, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(l.Title, 32, 44, 0, 0.5)
	dc.SetColor(colorSubtle)
	for i, line := range l.Lines {
		dc.DrawStringAnchored(line, 32, 64+20*float64(i), 0, 0.5)
	}
	legendPNG(dc, l)

	for _, b := range l.Boxes {
		cellPNG(dc, b)
	}
	return dc
}

func cellPNG(dc *gg.Context, b box) {
	dc.SetColor(b.Fill)
	dc.DrawRoundedRectangle(b.X, b.Y, b.W, b.H, 8)
	dc.Fill()

	dc.SetColor(b.Stroke)
	dc.SetLineWidth(1.2)
	if b.Blinking {
		dc.SetDash(6, 4)
	}
	dc.DrawRoundedRectangle(b.X, b.Y, b.W, b.H, 8)
	dc.Stroke()
	dc.SetDash()

	dc.SetColor(b.Font)
	dc.DrawStringAnchored(b.Label, b.X+10, b.Y+min(18, b.H/2), 0, 0.5)
	if b.Value != "" && b.H >= 40 {
		dc.DrawStringAnchored(b.Value, b.X+10, b.Y+min(36, b.H-10), 0, 0.5)
	}

	if b.Overlay {
		dc.SetColor(colorOverlay)
		dc.DrawCircle(b.X+b.W-8, b.Y+8, 6)
		dc.Fill()
	}
}

func legendPNG(dc *gg.Context, l layout) {
	if len(l.Legend) == 0 {
		return
	}
	h := 30 + float64(len(l.Legend))*legendRow
	x := float64(l.Width) - legendWidth - 20
	y := 24.0
	dc.SetColor(colorLegendBG)
	dc.DrawRoundedRectangle(x, y, legendWidth, h, 10)
	dc.Fill()
	dc.SetColor(colorStroke)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, legendWidth, h, 10)
	dc.Stroke()

	dc.SetColor(colorText)
	dc.DrawStringAnchored("Rules", x+12, y+18, 0, 0.5)
	for i, e := range l.Legend {
		ry := y + 36 + float64(i)*legendRow
		dc.SetColor(e.Color)
		dc.DrawRoundedRectangle(x+12, ry-8, 14, 14, 3)
		dc.Fill()
		dc.SetColor(colorStroke)
		dc.DrawRoundedRectangle(x+12, ry-8, 14, 14, 3)
		dc.Stroke()
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(legendText(e), x+32, ry, 0, 0.5)
	}
}
