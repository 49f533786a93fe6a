package rule

import (
	"github.com/vanderheijden86/flowstate/pkg/metric"
)

// SchemaVersion is the rule document version written by this package.
const SchemaVersion = 1

// ValueType selects the active threshold scale.
type ValueType string

const (
	TypeNumber ValueType = "number"
	TypeString ValueType = "string"
	TypeDate   ValueType = "date"
)

// ThresholdData is the persisted form of one threshold.
type ThresholdData[T any] struct {
	Color  string `yaml:"color" json:"color"`
	Value  T      `yaml:"value" json:"value"`
	Hidden bool   `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// IdentBy selects which cell property a map pattern is matched against.
type IdentBy string

const (
	IdentByID       IdentBy = "id"
	IdentByValue    IdentBy = "value"
	IdentByMetadata IdentBy = "metadata"
)

// MapOptions applies to every map of one family.
type MapOptions struct {
	IdentByProp IdentBy `yaml:"identByProp" json:"identByProp"`
	Metadata    string  `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	EnableRegEx bool    `yaml:"enableRegEx" json:"enableRegEx"`
}

// DefaultMapOptions matches cell ids with regular expressions.
func DefaultMapOptions() MapOptions {
	return MapOptions{IdentByProp: IdentByID, EnableRegEx: true}
}

// Eligibility gates a map on the resolved level.
type Eligibility string

const (
	OnNever    Eligibility = "n"
	OnCritical Eligibility = "wc"
	OnAlways   Eligibility = "a"
	OnLevel    Eligibility = "lvl"
)

// TextMethod says how a text map combines the label and the value.
type TextMethod string

const (
	TextContent       TextMethod = "content"
	TextPattern       TextMethod = "pattern"
	TextAppendSpace   TextMethod = "as"
	TextAppendNewline TextMethod = "anl"
)

// MapData is the persisted form of one shape, text, link or event map.
// Style holds the color slot of a shape map or the key of an event map.
type MapData struct {
	Pattern     string      `yaml:"pattern" json:"pattern"`
	Hidden      bool        `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	On          Eligibility `yaml:"on,omitempty" json:"on,omitempty"`
	Level       int         `yaml:"level,omitempty" json:"level,omitempty"`
	Style       string      `yaml:"style,omitempty" json:"style,omitempty"`
	TextReplace TextMethod  `yaml:"textReplace,omitempty" json:"textReplace,omitempty"`
	TextPattern string      `yaml:"textPattern,omitempty" json:"textPattern,omitempty"`
	LinkURL     string      `yaml:"linkUrl,omitempty" json:"linkUrl,omitempty"`
	Value       string      `yaml:"value,omitempty" json:"value,omitempty"`
}

// MapFamily groups the maps of one kind with their shared options.
type MapFamily struct {
	Options  MapOptions `yaml:"options" json:"options"`
	DataList []MapData  `yaml:"dataList,omitempty" json:"dataList,omitempty"`
}

// MapsData holds the four map families.
type MapsData struct {
	Shapes MapFamily `yaml:"shapes" json:"shapes"`
	Texts  MapFamily `yaml:"texts" json:"texts"`
	Links  MapFamily `yaml:"links" json:"links"`
	Events MapFamily `yaml:"events" json:"events"`
}

// ValueMapData renders one exact value as text.
type ValueMapData struct {
	Value  string `yaml:"value" json:"value"`
	Text   string `yaml:"text" json:"text"`
	Hidden bool   `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// RangeMapData renders a numeric range as text. Empty bounds are open.
type RangeMapData struct {
	From   string `yaml:"from" json:"from"`
	To     string `yaml:"to" json:"to"`
	Text   string `yaml:"text" json:"text"`
	Hidden bool   `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// Mapping types for string formatting.
const (
	MappingNone  = 0
	MappingValue = 1
	MappingRange = 2
)

// Data is the persisted rule record.
type Data struct {
	SchemaVersion int                `yaml:"schemaVersion" json:"schemaVersion"`
	ID            string             `yaml:"id,omitempty" json:"id,omitempty"`
	Order         int                `yaml:"order" json:"order"`
	Alias         string             `yaml:"alias" json:"alias"`
	Pattern       string             `yaml:"pattern" json:"pattern"`
	Type          ValueType          `yaml:"type" json:"type"`
	MetricType    metric.Kind        `yaml:"metricType" json:"metricType"`
	RefID         string             `yaml:"refId" json:"refId"`
	Column        string             `yaml:"column" json:"column"`
	Aggregation   metric.Aggregation `yaml:"aggregation" json:"aggregation"`
	Unit          string             `yaml:"unit" json:"unit"`
	Decimals      int                `yaml:"decimals" json:"decimals"`
	DateFormat    string             `yaml:"dateFormat" json:"dateFormat"`
	Hidden        bool               `yaml:"hidden" json:"hidden"`
	Invert        bool               `yaml:"invert" json:"invert"`
	Gradient      bool               `yaml:"gradient" json:"gradient"`
	OverlayIcon   bool               `yaml:"overlayIcon" json:"overlayIcon"`

	Tooltip       bool     `yaml:"tooltip" json:"tooltip"`
	TooltipLabel  string   `yaml:"tooltipLabel" json:"tooltipLabel"`
	TooltipColors bool     `yaml:"tooltipColors" json:"tooltipColors"`
	TooltipOn     string   `yaml:"tooltipOn" json:"tooltipOn"`
	TpDirection   string   `yaml:"tpDirection" json:"tpDirection"`
	TpMetadata    bool     `yaml:"tpMetadata" json:"tpMetadata"`
	TpGraph       bool     `yaml:"tpGraph" json:"tpGraph"`
	TpGraphType   string   `yaml:"tpGraphType" json:"tpGraphType"`
	TpGraphSize   string   `yaml:"tpGraphSize" json:"tpGraphSize"`
	TpGraphLow    *float64 `yaml:"tpGraphLow" json:"tpGraphLow"`
	TpGraphHigh   *float64 `yaml:"tpGraphHigh" json:"tpGraphHigh"`
	TpGraphScale  string   `yaml:"tpGraphScale" json:"tpGraphScale"`

	NumberTH []ThresholdData[float64] `yaml:"numberTH,omitempty" json:"numberTH,omitempty"`
	StringTH []ThresholdData[string]  `yaml:"stringTH,omitempty" json:"stringTH,omitempty"`
	DateTH   []ThresholdData[string]  `yaml:"dateTH,omitempty" json:"dateTH,omitempty"`

	Maps        MapsData       `yaml:"maps" json:"maps"`
	MappingType int            `yaml:"mappingType" json:"mappingType"`
	ValueMaps   []ValueMapData `yaml:"valueMaps,omitempty" json:"valueMaps,omitempty"`
	RangeMaps   []RangeMapData `yaml:"rangeMaps,omitempty" json:"rangeMaps,omitempty"`
}

// DefaultData returns a rule record with every field at its default.
// Decoding a document on top of it backfills missing fields.
func DefaultData() Data {
	return Data{
		SchemaVersion: SchemaVersion,
		Order:         1,
		Alias:         "myRule",
		Pattern:       ".*",
		Type:          TypeNumber,
		MetricType:    metric.KindSerie,
		RefID:         "A",
		Column:        "Time",
		Aggregation:   metric.AggCurrent,
		Unit:          "short",
		Decimals:      2,
		DateFormat:    "YYYY-MM-DD HH:mm:ss",
		TooltipOn:     "a",
		TpDirection:   "v",
		TpGraphType:   "line",
		TpGraphSize:   "100%",
		TpGraphScale:  "linear",
		Maps: MapsData{
			Shapes: MapFamily{Options: DefaultMapOptions()},
			Texts:  MapFamily{Options: DefaultMapOptions()},
			Links:  MapFamily{Options: DefaultMapOptions()},
			Events: MapFamily{Options: DefaultMapOptions()},
		},
		MappingType: MappingValue,
	}
}
