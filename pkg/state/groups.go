package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/reconcile"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// Backend views used by the property groups. *diagram.Cell implements all
// of them.
type (
	ShapeTarget interface {
		OriginalStyle(key string) string
		SetStyle(key, value string) error
	}
	TextTarget interface {
		OriginalLabel() string
		SetLabel(s string)
	}
	LinkTarget interface {
		OriginalLink() string
		SetLink(s string)
	}
	IconTarget interface {
		SetOverlay(on bool)
	}
	TooltipTarget interface {
		SetTooltip(t *diagram.Tooltip)
		MetadataMap() map[string]string
	}
	EventTarget interface {
		ShapeTarget
		TextTarget
		OriginalMetadata(key string) string
		SetMetadata(key, value string)
		OriginalHidden() bool
		SetHidden(hidden bool)
		OriginalCollapsed() bool
		SetCollapsed(collapsed bool)
		OriginalGeometry() diagram.Geometry
		Resize(width, height float64) error
		SetZoom(percent float64) error
		SetBlink(interval time.Duration)
	}
)

// Target is everything a CellState needs from its cell.
type Target interface {
	rule.Identity
	EventTarget
	LinkTarget
	IconTarget
	TooltipTarget
}

type (
	ShapeGroup = reconcile.Reconciler[rule.ShapeKey, string]
	TextGroup  = reconcile.Reconciler[rule.TextKey, string]
	LinkGroup  = reconcile.Reconciler[rule.LinkKey, string]
	IconGroup  = reconcile.Reconciler[rule.IconKey, bool]
	EventGroup = reconcile.Reconciler[rule.EventKey, string]
)

type shapeEffects struct{ t ShapeTarget }

func (e shapeEffects) Default(k rule.ShapeKey) string { return e.t.OriginalStyle(string(k)) }

func (e shapeEffects) Apply(k rule.ShapeKey, v string) error { return e.t.SetStyle(string(k), v) }

func (e shapeEffects) Revert(k rule.ShapeKey, v string) error { return e.t.SetStyle(string(k), v) }

// NewShapeGroup colors style slots.
func NewShapeGroup(t ShapeTarget) *ShapeGroup {
	return reconcile.New[rule.ShapeKey, string]("shape", shapeEffects{t})
}

type textEffects struct{ t TextTarget }

func (e textEffects) Default(rule.TextKey) string { return e.t.OriginalLabel() }

func (e textEffects) Apply(_ rule.TextKey, v string) error {
	e.t.SetLabel(v)
	return nil
}

func (e textEffects) Revert(_ rule.TextKey, v string) error {
	e.t.SetLabel(v)
	return nil
}

// NewTextGroup rewrites the label.
func NewTextGroup(t TextTarget) *TextGroup {
	return reconcile.New[rule.TextKey, string]("text", textEffects{t})
}

type linkEffects struct{ t LinkTarget }

func (e linkEffects) Default(rule.LinkKey) string { return e.t.OriginalLink() }

func (e linkEffects) Apply(_ rule.LinkKey, v string) error {
	e.t.SetLink(v)
	return nil
}

func (e linkEffects) Revert(_ rule.LinkKey, v string) error {
	e.t.SetLink(v)
	return nil
}

// NewLinkGroup sets the navigation target.
func NewLinkGroup(t LinkTarget) *LinkGroup {
	return reconcile.New[rule.LinkKey, string]("link", linkEffects{t})
}

type iconEffects struct{ t IconTarget }

func (iconEffects) Default(rule.IconKey) bool { return false }

func (e iconEffects) Apply(_ rule.IconKey, on bool) error {
	e.t.SetOverlay(on)
	return nil
}

func (e iconEffects) Revert(rule.IconKey, bool) error {
	e.t.SetOverlay(false)
	return nil
}

// NewIconGroup toggles the overlay marker.
func NewIconGroup(t IconTarget) *IconGroup {
	return reconcile.New[rule.IconKey, bool]("icon", iconEffects{t})
}

// eventEffects dispatches on the closed event key set. Width and height
// are committed together: applying one reads the other's target value and
// acknowledges it.
type eventEffects struct {
	t        EventTarget
	group    *EventGroup
	metaKeys map[string]bool
}

// NewEventGroup drives generic style, geometry and state properties.
func NewEventGroup(t EventTarget) *EventGroup {
	fx := &eventEffects{t: t, metaKeys: make(map[string]bool)}
	fx.group = reconcile.New[rule.EventKey, string]("event", fx)
	return fx.group
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (e *eventEffects) Default(k rule.EventKey) string {
	switch k.Kind() {
	case rule.EventKindText:
		return e.t.OriginalLabel()
	case rule.EventKindTooltipText:
		return e.t.OriginalMetadata("tooltip")
	case rule.EventKindMetadata:
		return ""
	case rule.EventKindVisibility:
		return boolFlag(!e.t.OriginalHidden())
	case rule.EventKindFold:
		return boolFlag(!e.t.OriginalCollapsed())
	case rule.EventKindHeight:
		return formatFloat(e.t.OriginalGeometry().Height)
	case rule.EventKindWidth:
		return formatFloat(e.t.OriginalGeometry().Width)
	case rule.EventKindSize:
		return "100"
	case rule.EventKindBlink:
		return ""
	default:
		return e.t.OriginalStyle(string(k))
	}
}

func (e *eventEffects) Apply(k rule.EventKey, v string) error { return e.set(k, v, false) }

func (e *eventEffects) Revert(k rule.EventKey, v string) error { return e.set(k, v, true) }

func (e *eventEffects) set(k rule.EventKey, v string, revert bool) error {
	if v == "null" {
		v = ""
	}
	switch k.Kind() {
	case rule.EventKindText:
		e.t.SetLabel(v)
	case rule.EventKindTooltipText:
		e.t.SetMetadata("tooltip", v)
	case rule.EventKindMetadata:
		if revert {
			for mk := range e.metaKeys {
				e.t.SetMetadata(mk, e.t.OriginalMetadata(mk))
			}
			clear(e.metaKeys)
			return nil
		}
		if v == "" {
			return nil
		}
		mk, mv, _ := strings.Cut(v, "@")
		e.metaKeys[mk] = true
		e.t.SetMetadata(mk, mv)
	case rule.EventKindVisibility:
		switch v {
		case "0":
			e.t.SetHidden(true)
		case "1":
			e.t.SetHidden(false)
		}
	case rule.EventKindFold:
		switch v {
		case "0":
			e.t.SetCollapsed(true)
		case "1":
			e.t.SetCollapsed(false)
		}
	case rule.EventKindHeight, rule.EventKindWidth:
		return e.resize(k, v)
	case rule.EventKindSize:
		percent, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("size %q: %w", v, err)
		}
		return e.t.SetZoom(percent)
	case rule.EventKindBlink:
		d, err := diagram.ParseBlink(v)
		if err != nil {
			return err
		}
		e.t.SetBlink(d)
	default:
		return e.t.SetStyle(string(k), v)
	}
	return nil
}

func (e *eventEffects) resize(k rule.EventKey, v string) error {
	size, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s %q: %w", k, v, err)
	}
	sibling := rule.EventWidth
	if k == rule.EventWidth {
		sibling = rule.EventHeight
	}
	other := e.Default(sibling)
	if tv, ok := e.group.TargetValue(sibling); ok {
		other = tv
	}
	e.group.Ack(sibling)
	otherSize, err := strconv.ParseFloat(other, 64)
	if err != nil {
		return fmt.Errorf("%s %q: %w", sibling, other, err)
	}
	if k == rule.EventWidth {
		return e.t.Resize(size, otherSize)
	}
	return e.t.Resize(otherSize, size)
}
