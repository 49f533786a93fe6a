package rule

import "fmt"

// ShapeKey names a color style slot of a cell.
type ShapeKey string

const (
	ShapeFillColor            ShapeKey = "fillColor"
	ShapeStrokeColor          ShapeKey = "strokeColor"
	ShapeFontColor            ShapeKey = "fontColor"
	ShapeGradientColor        ShapeKey = "gradientColor"
	ShapeLabelBackgroundColor ShapeKey = "labelBackgroundColor"
	ShapeLabelBorderColor     ShapeKey = "labelBorderColor"
	ShapeImageBackground      ShapeKey = "imageBackground"
	ShapeImageBorder          ShapeKey = "imageBorder"
)

// ShapeKeys lists every color slot.
var ShapeKeys = []ShapeKey{
	ShapeFillColor, ShapeStrokeColor, ShapeFontColor, ShapeGradientColor,
	ShapeLabelBackgroundColor, ShapeLabelBorderColor, ShapeImageBackground, ShapeImageBorder,
}

// ParseShapeKey validates a color slot name. An empty name selects fillColor.
func ParseShapeKey(s string) (ShapeKey, error) {
	if s == "" {
		return ShapeFillColor, nil
	}
	for _, k := range ShapeKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: shape style %q", ErrUnknownKey, s)
}

// Single-key groups.
type (
	TextKey    string
	LinkKey    string
	IconKey    string
	TooltipKey string
)

const (
	TextLabel   TextKey    = "label"
	LinkTarget  LinkKey    = "link"
	IconOverlay IconKey    = "icon"
	TooltipGate TooltipKey = "tooltip"
)

// EventKind is the effect family an event key dispatches to.
type EventKind int

const (
	EventKindText EventKind = iota
	EventKindTooltipText
	EventKindMetadata
	EventKindVisibility
	EventKindFold
	EventKindHeight
	EventKindWidth
	EventKindSize
	EventKindBlink
	EventKindAnimatedStyle
	EventKindStyle
)

// EventKey names a generic style, geometry or state property.
type EventKey string

const (
	EventText       EventKey = "text"
	EventTpText     EventKey = "tpText"
	EventTpMetadata EventKey = "tpMetadata"
	EventVisibility EventKey = "visibility"
	EventFold       EventKey = "fold"
	EventHeight     EventKey = "height"
	EventWidth      EventKey = "width"
	EventSize       EventKey = "size"
	EventBlink      EventKey = "blink"
)

var eventKinds = map[EventKey]EventKind{
	EventText:       EventKindText,
	EventTpText:     EventKindTooltipText,
	EventTpMetadata: EventKindMetadata,
	EventVisibility: EventKindVisibility,
	EventFold:       EventKindFold,
	EventHeight:     EventKindHeight,
	EventWidth:      EventKindWidth,
	EventSize:       EventKindSize,
	EventBlink:      EventKindBlink,

	// animated numeric styles
	"opacity":       EventKindAnimatedStyle,
	"textOpacity":   EventKindAnimatedStyle,
	"fillOpacity":   EventKindAnimatedStyle,
	"strokeOpacity": EventKindAnimatedStyle,
	"rotation":      EventKindAnimatedStyle,
	"fontSize":      EventKindAnimatedStyle,
	"strokeWidth":   EventKindAnimatedStyle,
	"arcSize":       EventKindAnimatedStyle,
	"spacing":       EventKindAnimatedStyle,

	// plain styles
	"shape":         EventKindStyle,
	"dashed":        EventKindStyle,
	"dashPattern":   EventKindStyle,
	"rounded":       EventKindStyle,
	"shadow":        EventKindStyle,
	"glass":         EventKindStyle,
	"fontStyle":     EventKindStyle,
	"fontFamily":    EventKindStyle,
	"align":         EventKindStyle,
	"verticalAlign": EventKindStyle,
	"labelPosition": EventKindStyle,
	"direction":     EventKindStyle,
	"flipH":         EventKindStyle,
	"flipV":         EventKindStyle,
	"image":         EventKindStyle,
	"whiteSpace":    EventKindStyle,
	"fillColor":     EventKindStyle,
	"strokeColor":   EventKindStyle,
	"fontColor":     EventKindStyle,
}

// ParseEventKey validates an event key.
func ParseEventKey(s string) (EventKey, error) {
	k := EventKey(s)
	if _, ok := eventKinds[k]; !ok {
		return "", fmt.Errorf("%w: event %q", ErrUnknownKey, s)
	}
	return k, nil
}

// Kind returns the effect family of k. Keys only come from ParseEventKey,
// so every key has a kind.
func (k EventKey) Kind() EventKind {
	return eventKinds[k]
}

// Animated reports whether the backend should transition the value.
func (k EventKey) Animated() bool {
	switch k.Kind() {
	case EventKindAnimatedStyle, EventKindHeight, EventKindWidth, EventKindSize:
		return true
	}
	return false
}
