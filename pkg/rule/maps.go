package rule

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/flowstate/pkg/pattern"
)

// Identity exposes the properties a map pattern can be matched against.
type Identity interface {
	Identity(by IdentBy, metadataKey string) []string
}

type mapBase struct {
	pattern string
	hidden  bool
	on      Eligibility
	level   int
}

func newMapBase(d MapData, regex bool) (mapBase, error) {
	on := d.On
	if on == "" {
		on = OnAlways
	}
	switch on {
	case OnNever, OnCritical, OnAlways, OnLevel:
	default:
		return mapBase{}, fmt.Errorf("%w: eligibility %q", ErrInvalidRule, d.On)
	}
	if err := pattern.Validate(d.Pattern, regex); err != nil {
		return mapBase{}, err
	}
	return mapBase{pattern: d.Pattern, hidden: d.Hidden, on: on, level: d.Level}, nil
}

func (m *mapBase) Pattern() string { return m.pattern }
func (m *mapBase) Hidden() bool    { return m.hidden }

// Match reports whether the cell identity selected by opts matches the
// map pattern.
func (m *mapBase) Match(id Identity, opts MapOptions) bool {
	return pattern.MatchAny(id.Identity(opts.IdentByProp, opts.Metadata), m.pattern, opts.EnableRegEx)
}

// Eligible reports whether a value resolved at level may write through
// this map.
func (m *mapBase) Eligible(level int) bool {
	switch m.on {
	case OnAlways:
		return level >= 0
	case OnCritical:
		return level >= 1
	case OnLevel:
		return level >= m.level
	default:
		return false
	}
}

// ShapeMap colors one style slot.
type ShapeMap struct {
	mapBase
	Key ShapeKey
}

// TextMap rewrites the label.
type TextMap struct {
	mapBase
	Method      TextMethod
	TextPattern string
}

// Replace combines the current label with the formatted value.
func (m *TextMap) Replace(current, value string) string {
	switch m.Method {
	case TextPattern:
		return pattern.Replace(current, m.TextPattern, value, true)
	case TextAppendSpace:
		return current + " " + value
	case TextAppendNewline:
		return current + "\n" + value
	default:
		return value
	}
}

// LinkMap sets the navigation target.
type LinkMap struct {
	mapBase
	URL string
}

// EventMap writes a templated value to an event key.
type EventMap struct {
	mapBase
	Key   EventKey
	Value string
}

func buildShapeMaps(f MapFamily) ([]*ShapeMap, error) {
	out := make([]*ShapeMap, 0, len(f.DataList))
	for i, d := range f.DataList {
		base, err := newMapBase(d, f.Options.EnableRegEx)
		if err != nil {
			return nil, fmt.Errorf("shape map %d: %w", i, err)
		}
		key, err := ParseShapeKey(d.Style)
		if err != nil {
			return nil, fmt.Errorf("shape map %d: %w", i, err)
		}
		out = append(out, &ShapeMap{mapBase: base, Key: key})
	}
	return out, nil
}

func buildTextMaps(f MapFamily) ([]*TextMap, error) {
	out := make([]*TextMap, 0, len(f.DataList))
	for i, d := range f.DataList {
		base, err := newMapBase(d, f.Options.EnableRegEx)
		if err != nil {
			return nil, fmt.Errorf("text map %d: %w", i, err)
		}
		method := d.TextReplace
		switch method {
		case "":
			method = TextContent
		case TextContent, TextAppendSpace, TextAppendNewline:
		case TextPattern:
			if strings.TrimSpace(d.TextPattern) == "" {
				return nil, fmt.Errorf("text map %d: %w: pattern replacement without textPattern", i, ErrInvalidRule)
			}
			if err := pattern.Validate(d.TextPattern, true); err != nil {
				return nil, fmt.Errorf("text map %d: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("text map %d: %w: replace method %q", i, ErrInvalidRule, d.TextReplace)
		}
		out = append(out, &TextMap{mapBase: base, Method: method, TextPattern: d.TextPattern})
	}
	return out, nil
}

func buildLinkMaps(f MapFamily) ([]*LinkMap, error) {
	out := make([]*LinkMap, 0, len(f.DataList))
	for i, d := range f.DataList {
		base, err := newMapBase(d, f.Options.EnableRegEx)
		if err != nil {
			return nil, fmt.Errorf("link map %d: %w", i, err)
		}
		out = append(out, &LinkMap{mapBase: base, URL: d.LinkURL})
	}
	return out, nil
}

func buildEventMaps(f MapFamily) ([]*EventMap, error) {
	out := make([]*EventMap, 0, len(f.DataList))
	for i, d := range f.DataList {
		base, err := newMapBase(d, f.Options.EnableRegEx)
		if err != nil {
			return nil, fmt.Errorf("event map %d: %w", i, err)
		}
		key, err := ParseEventKey(d.Style)
		if err != nil {
			return nil, fmt.Errorf("event map %d: %w", i, err)
		}
		out = append(out, &EventMap{mapBase: base, Key: key, Value: d.Value})
	}
	return out, nil
}

func normalizeOptions(o MapOptions) (MapOptions, error) {
	switch o.IdentByProp {
	case "":
		o.IdentByProp = IdentByID
	case IdentByID, IdentByValue:
	case IdentByMetadata:
		if o.Metadata == "" {
			return o, fmt.Errorf("%w: identByProp metadata without a metadata key", ErrInvalidRule)
		}
	default:
		return o, fmt.Errorf("%w: identByProp %q", ErrInvalidRule, o.IdentByProp)
	}
	return o, nil
}
