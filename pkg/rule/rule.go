// Package rule holds conditional-styling rules: a metric selection pattern,
// one active threshold scale, display options and the property maps that
// decide which cells a resolved value may style.
package rule

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanderheijden86/flowstate/pkg/colors"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
	"github.com/vanderheijden86/flowstate/pkg/pattern"
	"github.com/vanderheijden86/flowstate/pkg/threshold"
)

var (
	// ErrUnknownType is returned for a value type other than number, string or date.
	ErrUnknownType = errors.New("unknown value type")
	// ErrEmptyScale is returned when the active threshold scale has no entries.
	ErrEmptyScale = errors.New("threshold scale is empty")
	// ErrUnknownKey is returned for a shape or event key outside the closed key sets.
	ErrUnknownKey = errors.New("unknown property key")
	// ErrNonFinite is returned when a numeric value is NaN or infinite.
	ErrNonFinite = errors.New("value is not finite")
	// ErrNoValue is returned when a metric yields nothing the rule can resolve.
	ErrNoValue = errors.New("no value")
	// ErrInvalidRule wraps every other configuration error.
	ErrInvalidRule = errors.New("invalid rule")
)

// Resolution is the outcome of resolving one raw value against a rule.
type Resolution struct {
	Value     any
	Formatted string
	Index     int
	Level     int
	Color     string
}

// Aggregate is the highest outcome a rule produced in the current
// aggregation window, across every cell.
type Aggregate struct {
	Level     int
	Color     string
	Value     any
	Formatted string
}

type family[M any] struct {
	options MapOptions
	maps    []M
}

// Rule is a validated, evaluable rule. Threshold and map mutators are not
// safe for concurrent use; metric membership and the aggregate are.
type Rule struct {
	uid  string
	data Data

	number *threshold.NumberScale
	str    *threshold.StringScale
	date   *threshold.DateScale

	shapes family[*ShapeMap]
	texts  family[*TextMap]
	links  family[*LinkMap]
	events family[*EventMap]

	exec *metrics.TimingMetric

	mu       sync.Mutex
	registry *metric.Registry
	members  []string
	agg      Aggregate
}

// New validates d and builds a rule. Missing threshold lists get the
// default scales; an explicitly empty list stays empty.
func New(d Data) (*Rule, error) {
	r := &Rule{data: d, agg: Aggregate{Level: -1}}
	if err := r.load(d); err != nil {
		return nil, err
	}
	r.uid = d.ID
	if r.uid == "" {
		r.uid = uuid.NewString()
	}
	r.data.ID = r.uid
	r.exec = metrics.NewTimingMetric("rule:" + r.data.Alias)
	return r, nil
}

func (r *Rule) load(d Data) error {
	switch d.Type {
	case TypeNumber, TypeString, TypeDate:
	default:
		return fmt.Errorf("rule %q: %w: %q", d.Alias, ErrUnknownType, d.Type)
	}
	switch d.MetricType {
	case "":
		r.data.MetricType = metric.KindSerie
	case metric.KindSerie, metric.KindTable:
	default:
		return fmt.Errorf("rule %q: %w: metric type %q", d.Alias, ErrInvalidRule, d.MetricType)
	}
	if d.Aggregation == "" {
		r.data.Aggregation = metric.AggCurrent
	} else if !metric.ValidAggregation(d.Aggregation) {
		return fmt.Errorf("rule %q: %w: %q", d.Alias, metric.ErrUnknownAggregation, d.Aggregation)
	}
	if err := pattern.Validate(d.Pattern, true); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	switch d.MappingType {
	case MappingNone, MappingValue, MappingRange:
	default:
		return fmt.Errorf("rule %q: %w: mapping type %d", d.Alias, ErrInvalidRule, d.MappingType)
	}
	switch d.TooltipOn {
	case "":
		r.data.TooltipOn = "a"
	case "a", "wc":
	default:
		return fmt.Errorf("rule %q: %w: tooltipOn %q", d.Alias, ErrInvalidRule, d.TooltipOn)
	}

	var err error
	if r.number, err = buildNumberScale(d.NumberTH); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	if r.str, err = buildStringScale(d.StringTH); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	if r.date, err = buildDateScale(d.DateTH); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}

	if r.shapes, err = buildFamily(d.Maps.Shapes, buildShapeMaps); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	if r.texts, err = buildFamily(d.Maps.Texts, buildTextMaps); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	if r.links, err = buildFamily(d.Maps.Links, buildLinkMaps); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	if r.events, err = buildFamily(d.Maps.Events, buildEventMaps); err != nil {
		return fmt.Errorf("rule %q: %w", d.Alias, err)
	}
	return nil
}

func buildFamily[M any](f MapFamily, build func(MapFamily) ([]M, error)) (family[M], error) {
	opts, err := normalizeOptions(f.Options)
	if err != nil {
		return family[M]{}, err
	}
	f.Options = opts
	maps, err := build(f)
	if err != nil {
		return family[M]{}, err
	}
	return family[M]{options: opts, maps: maps}, nil
}

func checkColor(i int, c string) error {
	if !colors.Valid(c) {
		return fmt.Errorf("%w: threshold %d: %w", ErrInvalidRule, i, colors.ErrInvalidColor)
	}
	return nil
}

func buildNumberScale(list []ThresholdData[float64]) (*threshold.NumberScale, error) {
	if list == nil {
		return threshold.DefaultNumberScale(), nil
	}
	s := &threshold.NumberScale{}
	for i, th := range list {
		if err := checkColor(i, th.Color); err != nil {
			return nil, err
		}
		if math.IsNaN(th.Value) || math.IsInf(th.Value, 0) {
			return nil, fmt.Errorf("%w: threshold %d: %w", ErrInvalidRule, i, ErrNonFinite)
		}
		s.Add(th.Color, th.Value).SetHidden(th.Hidden)
	}
	return s, nil
}

func buildStringScale(list []ThresholdData[string]) (*threshold.StringScale, error) {
	if list == nil {
		return threshold.DefaultStringScale(), nil
	}
	s := &threshold.StringScale{}
	for i, th := range list {
		if err := checkColor(i, th.Color); err != nil {
			return nil, err
		}
		if err := pattern.Validate(th.Value, true); err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i, err)
		}
		s.Add(th.Color, th.Value).SetHidden(th.Hidden)
	}
	return s, nil
}

func buildDateScale(list []ThresholdData[string]) (*threshold.DateScale, error) {
	if list == nil {
		return threshold.DefaultDateScale(), nil
	}
	s := &threshold.DateScale{}
	now := time.Now()
	for i, th := range list {
		if err := checkColor(i, th.Color); err != nil {
			return nil, err
		}
		if _, err := threshold.ResolveDate(th.Value, now); err != nil {
			return nil, fmt.Errorf("%w: threshold %d: %w", ErrInvalidRule, i, err)
		}
		s.Add(th.Color, th.Value).SetHidden(th.Hidden)
	}
	return s, nil
}

// UID returns the stable identifier of the rule.
func (r *Rule) UID() string { return r.uid }

func (r *Rule) Alias() string           { return r.data.Alias }
func (r *Rule) Order() int              { return r.data.Order }
func (r *Rule) Hidden() bool            { return r.data.Hidden }
func (r *Rule) Type() ValueType         { return r.data.Type }
func (r *Rule) Invert() bool            { return r.data.Invert }
func (r *Rule) Gradient() bool          { return r.data.Gradient }
func (r *Rule) MetricType() metric.Kind { return r.data.MetricType }

// Options returns a copy of the scalar options. Threshold lists and maps
// in the copy are not populated; use Data for a full record.
func (r *Rule) Options() Data {
	d := r.data
	d.NumberTH, d.StringTH, d.DateTH = nil, nil, nil
	d.Maps = MapsData{}
	return d
}

// Data regenerates the persisted record from the live rule.
func (r *Rule) Data() Data {
	d := r.data
	d.SchemaVersion = SchemaVersion
	d.ID = r.uid

	d.NumberTH = make([]ThresholdData[float64], 0, r.number.Len())
	for _, th := range r.number.Items() {
		d.NumberTH = append(d.NumberTH, ThresholdData[float64]{Color: th.Color(), Value: th.Value(), Hidden: th.Hidden()})
	}
	d.StringTH = make([]ThresholdData[string], 0, r.str.Len())
	for _, th := range r.str.Items() {
		d.StringTH = append(d.StringTH, ThresholdData[string]{Color: th.Color(), Value: th.Value(), Hidden: th.Hidden()})
	}
	d.DateTH = make([]ThresholdData[string], 0, r.date.Len())
	for _, th := range r.date.Items() {
		d.DateTH = append(d.DateTH, ThresholdData[string]{Color: th.Color(), Value: th.Value(), Hidden: th.Hidden()})
	}
	return d
}

// SetType switches the active scale. The other scales are kept.
func (r *Rule) SetType(t ValueType) error {
	switch t {
	case TypeNumber, TypeString, TypeDate:
		r.data.Type = t
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// SetDateClock replaces time.Now for relative date boundaries.
func (r *Rule) SetDateClock(now func() time.Time) { r.date.SetClock(now) }

// NumberScale, StringScale and DateScale expose the three scales; only the
// one selected by Type is active.
func (r *Rule) NumberScale() *threshold.NumberScale { return r.number }
func (r *Rule) StringScale() *threshold.StringScale { return r.str }
func (r *Rule) DateScale() *threshold.DateScale     { return r.date }

// Thresholds returns the active scale.
func (r *Rule) Thresholds() (threshold.Editable, error) {
	switch r.data.Type {
	case TypeNumber:
		return r.number, nil
	case TypeString:
		return r.str, nil
	case TypeDate:
		return r.date, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, r.data.Type)
}

func (r *Rule) activeScale() (threshold.Editable, error) {
	s, err := r.Thresholds()
	if err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("rule %q: %w", r.data.Alias, ErrEmptyScale)
	}
	return s, nil
}

// ThresholdCount returns the length of the active scale, or 0 for an
// unknown type.
func (r *Rule) ThresholdCount() int {
	s, err := r.Thresholds()
	if err != nil {
		return 0
	}
	return s.Len()
}

// AddThreshold inserts a derived threshold after position after in the
// active scale and returns its index.
func (r *Rule) AddThreshold(after int) (int, error) {
	s, err := r.Thresholds()
	if err != nil {
		return -1, err
	}
	return s.Insert(after), nil
}

// RemoveThreshold removes the entry at index i of the active scale.
func (r *Rule) RemoveThreshold(i int) error {
	s, err := r.Thresholds()
	if err != nil {
		return err
	}
	return s.Remove(i)
}

// InvertThresholds reverses the colors of all three scales and flips the
// invert flag, so every value keeps its color while levels are mirrored.
func (r *Rule) InvertThresholds() {
	r.InvertThresholdColors()
	r.data.Invert = !r.data.Invert
}

// InvertThresholdColors reverses the colors of all three scales.
func (r *Rule) InvertThresholdColors() {
	r.number.InvertColors()
	r.str.InvertColors()
	r.date.InvertColors()
}

// InitThresholds restores the default scales.
func (r *Rule) InitThresholds() {
	clock := r.date
	r.number = threshold.DefaultNumberScale()
	r.str = threshold.DefaultStringScale()
	r.date = threshold.DefaultDateScale()
	r.date.SetClock(clock.Clock())
}

// LevelForIndex maps an index of the active scale to a level.
func (r *Rule) LevelForIndex(i int) int {
	return threshold.Level(i, r.ThresholdCount(), r.data.Invert)
}

// IndexForLevel maps a level to an index of the active scale.
func (r *Rule) IndexForLevel(level int) int {
	return threshold.IndexForLevel(level, r.ThresholdCount(), r.data.Invert)
}

// ColorForLevel returns the flat color of the entry at level, or "".
func (r *Rule) ColorForLevel(level int) string {
	s, err := r.Thresholds()
	if err != nil {
		return ""
	}
	return s.ColorAt(r.IndexForLevel(level))
}

// ToIconize reports whether a cell at level gets the overlay icon.
func (r *Rule) ToIconize(level int) bool {
	return r.data.OverlayIcon && level >= 1
}

// ToTooltipize reports whether a cell at level gets a tooltip entry.
func (r *Rule) ToTooltipize(level int) bool {
	if !r.data.Tooltip && !r.data.TpMetadata {
		return false
	}
	if r.data.TooltipOn == "a" {
		return level >= 0
	}
	return level >= 1
}

// Resolve turns a raw metric value into a level, a color and display text.
func (r *Rule) Resolve(v any) (Resolution, error) {
	defer metrics.Timer(r.exec)()
	defer metrics.Timer(metrics.RuleEvaluation)()

	if _, err := r.activeScale(); err != nil {
		return Resolution{Index: -1, Level: -1}, err
	}
	res := Resolution{Value: v, Index: -1, Level: -1}
	switch r.data.Type {
	case TypeNumber:
		f, err := metric.ToFloat(v)
		if err != nil {
			return res, fmt.Errorf("rule %q: %w: %w", r.data.Alias, ErrNoValue, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			res.Formatted = "null"
			return res, fmt.Errorf("rule %q: %w", r.data.Alias, ErrNonFinite)
		}
		res.Value = f
		res.Index = r.number.IndexFor(f)
		color, err := r.number.ColorFor(f, r.data.Gradient)
		if err != nil {
			return res, fmt.Errorf("rule %q: %w", r.data.Alias, err)
		}
		res.Color = color
	case TypeString:
		s := Stringify(v)
		res.Index = r.str.IndexFor(s)
		res.Color = r.str.ColorAt(res.Index)
	case TypeDate:
		t := metric.ParseTime(v)
		if t.IsZero() {
			return res, fmt.Errorf("rule %q: %w: unreadable date %v", r.data.Alias, ErrNoValue, v)
		}
		res.Index = r.date.IndexFor(t)
		res.Color = r.date.ColorAt(res.Index)
	}
	res.Level = r.LevelForIndex(res.Index)
	res.Formatted = r.Format(res.Value)
	return res, nil
}

// Format renders a raw value according to the rule type and unit.
func (r *Rule) Format(v any) string {
	switch r.data.Type {
	case TypeNumber:
		if v == nil {
			return "-"
		}
		f, err := metric.ToFloat(v)
		if err != nil {
			return "null"
		}
		return FormatNumber(f, r.data.Unit, r.data.Decimals)
	case TypeString:
		return FormatString(Stringify(v), r.data.MappingType, r.data.ValueMaps, r.data.RangeMaps)
	case TypeDate:
		if v == nil {
			return "-"
		}
		return FormatDate(v, r.data.DateFormat)
	}
	return Stringify(v)
}

// ValueFor reads the rule's aggregation of m.
func (r *Rule) ValueFor(m metric.Metric) (any, error) {
	if !r.MatchMetric(m) {
		return nil, fmt.Errorf("rule %q: %w: metric %s not selected", r.data.Alias, ErrNoValue, m.ID())
	}
	v, err := m.Value(r.data.Aggregation, r.data.Column)
	if err != nil {
		return nil, fmt.Errorf("rule %q: metric %s: %w", r.data.Alias, m.Name(), err)
	}
	return v, nil
}

// MatchMetric reports whether m is selected by the rule: series by name
// pattern, tables by reference id.
func (r *Rule) MatchMetric(m metric.Metric) bool {
	if m.Kind() != r.data.MetricType {
		return false
	}
	switch m.Kind() {
	case metric.KindSerie:
		return pattern.Match(m.Name(), r.data.Pattern, true)
	case metric.KindTable:
		return m.Name() == r.data.RefID
	}
	return false
}

// ShapeMaps, TextMaps, LinkMaps and EventMaps return each family with its
// options.
func (r *Rule) ShapeMaps() ([]*ShapeMap, MapOptions) { return r.shapes.maps, r.shapes.options }
func (r *Rule) TextMaps() ([]*TextMap, MapOptions)   { return r.texts.maps, r.texts.options }
func (r *Rule) LinkMaps() ([]*LinkMap, MapOptions)   { return r.links.maps, r.links.options }
func (r *Rule) EventMaps() ([]*EventMap, MapOptions) { return r.events.maps, r.events.options }

// MatchTarget reports whether any visible map of the rule matches id.
func (r *Rule) MatchTarget(id Identity) bool {
	for _, m := range r.shapes.maps {
		if !m.Hidden() && m.Match(id, r.shapes.options) {
			return true
		}
	}
	for _, m := range r.texts.maps {
		if !m.Hidden() && m.Match(id, r.texts.options) {
			return true
		}
	}
	for _, m := range r.links.maps {
		if !m.Hidden() && m.Match(id, r.links.options) {
			return true
		}
	}
	for _, m := range r.events.maps {
		if !m.Hidden() && m.Match(id, r.events.options) {
			return true
		}
	}
	return false
}

// Attach subscribes the rule to metric membership events of reg.
func (r *Rule) Attach(reg *metric.Registry) {
	r.Detach()
	r.mu.Lock()
	r.registry = reg
	r.mu.Unlock()
	reg.Subscribe(r.uid, r.onMetricEvent)
}

// Detach drops the subscription and the member list.
func (r *Rule) Detach() {
	r.mu.Lock()
	reg := r.registry
	r.registry = nil
	r.members = nil
	r.mu.Unlock()
	if reg != nil {
		reg.Unsubscribe(r.uid)
	}
}

func (r *Rule) onMetricEvent(ev metric.Event) {
	id := ev.Metric.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Kind {
	case metric.Created:
		if !r.MatchMetric(ev.Metric) {
			return
		}
		for _, m := range r.members {
			if m == id {
				return
			}
		}
		r.members = append(r.members, id)
		debug.Log("rule %s: metric %s joined", r.data.Alias, id)
	case metric.Deleted:
		for i, m := range r.members {
			if m == id {
				r.members = append(r.members[:i], r.members[i+1:]...)
				debug.Log("rule %s: metric %s left", r.data.Alias, id)
				return
			}
		}
	}
}

// Metrics returns the current members in the order they joined.
func (r *Rule) Metrics() []metric.Metric {
	r.mu.Lock()
	reg := r.registry
	ids := make([]string, len(r.members))
	copy(ids, r.members)
	r.mu.Unlock()
	if reg == nil {
		return nil
	}
	out := make([]metric.Metric, 0, len(ids))
	for _, id := range ids {
		if m, ok := reg.Get(id); ok {
			out = append(out, m)
		}
	}
	return out
}

// HasMetric reports whether the metric with the given id is a member.
func (r *Rule) HasMetric(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m == id {
			return true
		}
	}
	return false
}

// Observe folds one outcome into the aggregate. Equal levels replace the
// previous outcome.
func (r *Rule) Observe(res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Level >= r.agg.Level {
		r.agg = Aggregate{Level: res.Level, Color: res.Color, Value: res.Value, Formatted: res.Formatted}
	}
}

// Aggregate returns the highest outcome of the current window.
func (r *Rule) Aggregate() Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agg
}

// ResetAggregate starts a new aggregation window.
func (r *Rule) ResetAggregate() {
	r.mu.Lock()
	r.agg = Aggregate{Level: -1}
	r.mu.Unlock()
	r.exec.Reset()
}

// ExecStats returns the timing of Resolve calls in the current window.
func (r *Rule) ExecStats() metrics.TimingStats { return r.exec.Stats() }
