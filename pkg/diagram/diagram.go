// Package diagram is the in-memory rendering backend: a flat list of cells
// whose style, label, link, geometry and overlays are mutated by property
// groups and read by the snapshot and terminal views.
package diagram

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/colors"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// ErrRejected is returned when the backend refuses a mutation.
var ErrRejected = errors.New("mutation rejected")

// Geometry is the cell frame in diagram units.
type Geometry struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Empty reports whether no size was given.
func (g Geometry) Empty() bool { return g.Width <= 0 || g.Height <= 0 }

// Diagram is an ordered set of cells.
type Diagram struct {
	Title string  `yaml:"title" json:"title"`
	Cells []*Cell `yaml:"cells" json:"cells"`

	index map[string]*Cell
}

// Init validates the cell ids and captures every cell's original state.
// It must be called once after decoding.
func (d *Diagram) Init() error {
	d.index = make(map[string]*Cell, len(d.Cells))
	for i, c := range d.Cells {
		if c == nil || c.ID == "" {
			return fmt.Errorf("cell %d: missing id", i)
		}
		if _, dup := d.index[c.ID]; dup {
			return fmt.Errorf("cell %q: duplicate id", c.ID)
		}
		c.init()
		d.index[c.ID] = c
	}
	return nil
}

// Cell returns the cell with the given id.
func (d *Diagram) Cell(id string) (*Cell, bool) {
	c, ok := d.index[id]
	return c, ok
}

// Restore puts every cell back into its original state.
func (d *Diagram) Restore() {
	for _, c := range d.Cells {
		c.Restore()
	}
}

type original struct {
	label     string
	link      string
	style     map[string]string
	metadata  map[string]string
	geometry  Geometry
	hidden    bool
	collapsed bool
}

// Cell is one styled element. Exported fields are the authored state;
// mutators change them in place and the original is kept for reverts.
type Cell struct {
	ID        string            `yaml:"id" json:"id"`
	Label     string            `yaml:"label" json:"label"`
	Link      string            `yaml:"link,omitempty" json:"link,omitempty"`
	Style     map[string]string `yaml:"style,omitempty" json:"style,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Geometry  Geometry          `yaml:"geometry" json:"geometry"`
	Hidden    bool              `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Collapsed bool              `yaml:"collapsed,omitempty" json:"collapsed,omitempty"`

	orig    original
	overlay bool
	tooltip *Tooltip
	blink   time.Duration
	zoom    float64
	ready   bool
}

// NewCell builds an initialized cell.
func NewCell(id, label string, style map[string]string) *Cell {
	c := &Cell{ID: id, Label: label, Style: style}
	c.init()
	return c
}

func (c *Cell) init() {
	if c.Style == nil {
		c.Style = make(map[string]string)
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.orig = original{
		label:     c.Label,
		link:      c.Link,
		style:     maps.Clone(c.Style),
		metadata:  maps.Clone(c.Metadata),
		geometry:  c.Geometry,
		hidden:    c.Hidden,
		collapsed: c.Collapsed,
	}
	c.zoom = 1
	c.ready = true
}

// Restore reverts every mutation.
func (c *Cell) Restore() {
	if !c.ready {
		c.init()
		return
	}
	c.Label = c.orig.label
	c.Link = c.orig.link
	c.Style = maps.Clone(c.orig.style)
	c.Metadata = maps.Clone(c.orig.metadata)
	c.Geometry = c.orig.geometry
	c.Hidden = c.orig.hidden
	c.Collapsed = c.orig.collapsed
	c.overlay = false
	c.tooltip = nil
	c.blink = 0
	c.zoom = 1
}

// Identity returns the values a map pattern is matched against.
func (c *Cell) Identity(by rule.IdentBy, metadataKey string) []string {
	switch by {
	case rule.IdentByValue:
		return []string{c.Label}
	case rule.IdentByMetadata:
		if v, ok := c.Metadata[metadataKey]; ok {
			return strings.Split(v, ",")
		}
		return nil
	default:
		return []string{c.ID}
	}
}

func (c *Cell) OriginalLabel() string           { return c.orig.label }
func (c *Cell) OriginalLink() string            { return c.orig.link }
func (c *Cell) OriginalGeometry() Geometry      { return c.orig.geometry }
func (c *Cell) OriginalHidden() bool            { return c.orig.hidden }
func (c *Cell) OriginalCollapsed() bool         { return c.orig.collapsed }
func (c *Cell) OriginalStyle(key string) string { return c.orig.style[key] }

// OriginalMetadata returns the authored metadata value for key.
func (c *Cell) OriginalMetadata(key string) string { return c.orig.metadata[key] }

// StyleValue returns the live style value for key.
func (c *Cell) StyleValue(key string) string { return c.Style[key] }

// SetStyle writes one style property. Color properties must parse; an
// empty value removes the property.
func (c *Cell) SetStyle(key, value string) error {
	if value == "" {
		delete(c.Style, key)
		return nil
	}
	if isColorKey(key) && value != "none" && !colors.Valid(value) {
		return fmt.Errorf("cell %s: %w: %s=%q is not a color", c.ID, ErrRejected, key, value)
	}
	c.Style[key] = value
	return nil
}

func isColorKey(key string) bool {
	return strings.HasSuffix(key, "Color") || key == "imageBackground" || key == "imageBorder"
}

// SetLabel replaces the label.
func (c *Cell) SetLabel(s string) { c.Label = s }

// SetLink replaces the navigation target.
func (c *Cell) SetLink(s string) { c.Link = s }

// MetadataMap returns a copy of the live metadata.
func (c *Cell) MetadataMap() map[string]string { return maps.Clone(c.Metadata) }

// SetMetadata writes one metadata property; an empty value removes it.
func (c *Cell) SetMetadata(key, value string) {
	if value == "" {
		delete(c.Metadata, key)
		return
	}
	c.Metadata[key] = value
}

// SetHidden shows or hides the cell.
func (c *Cell) SetHidden(hidden bool) { c.Hidden = hidden }

// SetCollapsed folds or unfolds the cell.
func (c *Cell) SetCollapsed(collapsed bool) { c.Collapsed = collapsed }

// Resize changes the frame around its center. Non-positive sizes are
// rejected.
func (c *Cell) Resize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("cell %s: %w: size %gx%g", c.ID, ErrRejected, width, height)
	}
	g := c.Geometry
	g.X -= (width - g.Width) / 2
	g.Y -= (height - g.Height) / 2
	g.Width, g.Height = width, height
	c.Geometry = g
	return nil
}

// SetZoom scales the cell by percent of its original size.
func (c *Cell) SetZoom(percent float64) error {
	if percent <= 0 {
		return fmt.Errorf("cell %s: %w: zoom %g%%", c.ID, ErrRejected, percent)
	}
	c.zoom = percent / 100
	return nil
}

// Zoom returns the display scale factor.
func (c *Cell) Zoom() float64 {
	if c.zoom == 0 {
		return 1
	}
	return c.zoom
}

// SetBlink starts blinking at the given interval; zero stops it.
func (c *Cell) SetBlink(interval time.Duration) { c.blink = interval }

// Blink returns the blink interval, zero when not blinking.
func (c *Cell) Blink() time.Duration { return c.blink }

// SetOverlay shows or removes the warning overlay marker.
func (c *Cell) SetOverlay(on bool) { c.overlay = on }

// Overlay reports whether the overlay marker is shown.
func (c *Cell) Overlay() bool { return c.overlay }

// SetTooltip attaches a tooltip; nil detaches it.
func (c *Cell) SetTooltip(t *Tooltip) { c.tooltip = t }

// Tooltip returns the attached tooltip or nil.
func (c *Cell) Tooltip() *Tooltip { return c.tooltip }

// ParseBlink reads a blink value in milliseconds. Empty or "0" stops.
func ParseBlink(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(s)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%w: blink %q", ErrRejected, s)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
