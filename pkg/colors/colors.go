// Package colors parses the color notations accepted in rule and diagram
// documents and blends them in CIE L*a*b* space.
//
// Accepted notations: #rgb, #rrggbb, #rrggbbaa, rgb(r, g, b), rgba(r, g, b, a)
// and the SVG color keywords (red, orange, green, ...).
package colors

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ErrInvalidColor is returned when a string is not a recognized color.
var ErrInvalidColor = errors.New("invalid color")

// Color is an sRGB color with a separate alpha channel in [0,1].
type Color struct {
	colorful.Color
	A float64
}

// Parse reads a color string.
func Parse(s string) (Color, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	switch {
	case raw == "":
		return Color{}, fmt.Errorf("%w: empty", ErrInvalidColor)
	case raw == "transparent" || raw == "none":
		return Color{A: 0}, nil
	case strings.HasPrefix(raw, "#"):
		return parseHex(raw)
	case strings.HasPrefix(raw, "rgb"):
		return parseFunc(raw)
	}
	if c, ok := colornames.Map[raw]; ok {
		return fromRGBA(c), nil
	}
	return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// Valid reports whether s parses as a color.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Color {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(raw string) (Color, error) {
	h := raw[1:]
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	alpha := 1.0
	switch len(h) {
	case 6:
	case 8:
		a, err := strconv.ParseUint(h[6:], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
		}
		alpha = float64(a) / 255
		h = h[:6]
	default:
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	c, err := colorful.Hex("#" + h)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	return Color{Color: c, A: alpha}, nil
}

func parseFunc(raw string) (Color, error) {
	open := strings.IndexByte(raw, '(')
	if open < 0 || !strings.HasSuffix(raw, ")") {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	name := strings.TrimSpace(raw[:open])
	parts := strings.Split(raw[open+1:len(raw)-1], ",")
	if (name == "rgb" && len(parts) != 3) || (name == "rgba" && len(parts) != 4) || (name != "rgb" && name != "rgba") {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || v < 0 || v > 255 {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
		}
		ch[i] = v / 255
	}
	alpha := 1.0
	if len(parts) == 4 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || v < 0 || v > 1 {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
		}
		alpha = v
	}
	return Color{Color: colorful.Color{R: ch[0], G: ch[1], B: ch[2]}, A: alpha}, nil
}

func fromRGBA(c color.RGBA) Color {
	return Color{
		Color: colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255},
		A:     float64(c.A) / 255,
	}
}

// Hex renders the color as #rrggbb, or #rrggbbaa when it is not opaque.
func (c Color) Hex() string {
	hex := c.Clamped().Hex()
	if c.A >= 1 {
		return hex
	}
	return fmt.Sprintf("%s%02x", hex, uint8(math.Round(clamp01(c.A)*255)))
}

// RGBA8 converts to a non-premultiplied 8-bit color for the rasterizers.
func (c Color) RGBA8() color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(clamp01(c.A) * 255))}
}

// Blend mixes c towards to by t in L*a*b*; alpha is mixed linearly.
func (c Color) Blend(to Color, t float64) Color {
	return Color{
		Color: c.Color.BlendLab(to.Color, t).Clamped(),
		A:     c.A + (to.A-c.A)*t,
	}
}

// Interpolate returns the color at ratio between begin and end. The ratio is
// clamped to [0,1]; at exactly 0 or 1 the endpoint string is returned as is.
func Interpolate(begin, end string, ratio float64) (string, error) {
	if math.IsNaN(ratio) {
		return "", fmt.Errorf("interpolate %q..%q: ratio is NaN", begin, end)
	}
	ratio = clamp01(ratio)
	if ratio == 0 {
		return begin, nil
	}
	if ratio == 1 {
		return end, nil
	}
	b, err := Parse(begin)
	if err != nil {
		return "", err
	}
	e, err := Parse(end)
	if err != nil {
		return "", err
	}
	return b.Blend(e, ratio).Hex(), nil
}

// Ratio returns where value sits between begin and end, clamped to [0,1].
// A zero-width band yields 1.
func Ratio(begin, end, value float64) float64 {
	width := end - begin
	if width == 0 {
		return 1
	}
	return clamp01((value - begin) / width)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
