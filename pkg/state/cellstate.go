// Package state reconciles the outcome of every rule bound to a cell onto
// that cell's property groups.
//
// One cycle is Prepare, Evaluate, Apply. Evaluate resolves every bound rule
// against each of its metrics and proposes values to the groups; the
// highest level wins per key. Apply then commits the winners and reverts
// keys that stopped matching one cycle earlier.
package state

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
	"github.com/vanderheijden86/flowstate/pkg/reconcile"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// CellState owns the property groups of one cell.
type CellState struct {
	id     string
	target Target
	rules  []*rule.Rule

	shape   *ShapeGroup
	text    *TextGroup
	link    *LinkGroup
	icon    *IconGroup
	tooltip *TooltipGroup
	event   *EventGroup

	vars *Variables
	now  func() time.Time

	// per cycle
	globalLevel      int
	highestValue     any
	highestFormatted string
	matchedRules     []string
	matchedMetrics   []string
	status           map[string]string
	matched          bool

	// set once the cell has been applied
	changed bool
}

// New creates the state of the cell identified by id.
func New(id string, target Target) *CellState {
	return &CellState{
		id:          id,
		target:      target,
		shape:       NewShapeGroup(target),
		text:        NewTextGroup(target),
		link:        NewLinkGroup(target),
		icon:        NewIconGroup(target),
		tooltip:     NewTooltipGroup(target),
		event:       NewEventGroup(target),
		vars:        NewVariables(),
		now:         time.Now,
		globalLevel: reconcile.NoLevel,
		status:      make(map[string]string),
	}
}

// ID returns the cell id.
func (s *CellState) ID() string { return s.id }

// SetClock replaces time.Now for the ${_date} variable.
func (s *CellState) SetClock(now func() time.Time) { s.now = now }

// UpdateRule binds r when one of its maps matches the cell and unbinds it
// otherwise. A rule with the uid of a bound rule replaces it. Bound rules
// are kept sorted by order, ties in binding order.
func (s *CellState) UpdateRule(r *rule.Rule) bool {
	s.RemoveRule(r.UID())
	if !r.MatchTarget(s.target) {
		return false
	}
	i := len(s.rules)
	for j, other := range s.rules {
		if other.Order() > r.Order() {
			i = j
			break
		}
	}
	s.rules = slices.Insert(s.rules, i, r)
	return true
}

// RemoveRule unbinds the rule with the given uid.
func (s *CellState) RemoveRule(uid string) bool {
	i := slices.IndexFunc(s.rules, func(r *rule.Rule) bool { return r.UID() == uid })
	if i < 0 {
		return false
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	return true
}

// HasRule reports whether the rule with the given uid is bound.
func (s *CellState) HasRule(uid string) bool {
	return slices.ContainsFunc(s.rules, func(r *rule.Rule) bool { return r.UID() == uid })
}

// Rules returns the bound rules in evaluation order.
func (s *CellState) Rules() []*rule.Rule { return slices.Clone(s.rules) }

func (s *CellState) clearCycle() {
	s.vars.Clear()
	clear(s.status)
	s.globalLevel = reconcile.NoLevel
	s.highestValue = nil
	s.highestFormatted = ""
	s.matchedRules = s.matchedRules[:0]
	s.matchedMetrics = s.matchedMetrics[:0]
	s.matched = false
}

// Prepare opens a cycle. The groups are only prepared once the cell has
// been applied at least once.
func (s *CellState) Prepare() {
	s.clearCycle()
	if !s.changed {
		return
	}
	s.shape.Prepare()
	s.tooltip.Prepare()
	s.icon.Prepare()
	s.event.Prepare()
	s.text.Prepare()
	s.link.Prepare()
}

// Evaluate proposes the outcome of every visible bound rule and each of
// its metrics to the property groups.
func (s *CellState) Evaluate() {
	defer metrics.Timer(metrics.CellCycle)()
	for _, r := range s.rules {
		if r.Hidden() {
			continue
		}
		s.evaluateRule(r)
	}
}

func (s *CellState) evaluateRule(r *rule.Rule) {
	s.vars.Set(VarRule, r.Alias())
	for _, m := range r.Metrics() {
		s.addMetric(m.Name())
		v, err := r.ValueFor(m)
		if err != nil {
			debug.Error("cell %s: %v", s.id, err)
			continue
		}
		res, err := r.Resolve(v)
		if err != nil {
			debug.Error("cell %s: metric %s: %v", s.id, m.Name(), err)
			continue
		}
		s.vars.Set(VarMetric, m.Name())
		s.vars.Set(VarValue, rule.Stringify(res.Value))
		s.vars.Set(VarFormatted, res.Formatted)
		s.vars.SetInt(VarLevel, res.Level)
		s.vars.Set(VarColor, res.Color)
		s.vars.Set(VarDate, s.now().Format(time.DateTime))

		if s.evaluateMaps(r, m, res) {
			s.addRule(r.Alias())
			r.Observe(res)
		}
	}
}

// evaluateMaps proposes one resolved outcome through every map of r. It
// reports whether any map was eligible.
func (s *CellState) evaluateMaps(r *rule.Rule, m metric.Metric, res rule.Resolution) bool {
	eligible := false
	level := res.Level

	shapes, opts := r.ShapeMaps()
	for _, sm := range shapes {
		if sm.Hidden() || !sm.Match(s.target, opts) {
			continue
		}
		if sm.Eligible(level) {
			eligible = true
			if s.shape.Set(sm.Key, res.Color, level) {
				s.accept(string(sm.Key), res.Color, res)
			}
		}
		if r.ToTooltipize(level) {
			if s.tooltip.Set(level) {
				s.accept(string(rule.TooltipGate), "true", res)
			}
			s.tooltip.Add(r, m, res)
		}
		if r.ToIconize(level) && s.icon.Set(rule.IconOverlay, true, level) {
			s.accept(string(rule.IconOverlay), "true", res)
		}
	}

	texts, opts := r.TextMaps()
	for _, tm := range texts {
		if tm.Hidden() || !tm.Match(s.target, opts) || !tm.Eligible(level) {
			continue
		}
		eligible = true
		current, ok := s.text.MatchValue(rule.TextLabel)
		if !ok {
			current = s.target.OriginalLabel()
		}
		v := tm.Replace(current, s.vars.Replace(res.Formatted))
		if s.text.Set(rule.TextLabel, v, level) {
			s.accept(string(rule.TextLabel), v, res)
		}
	}

	events, opts := r.EventMaps()
	for _, em := range events {
		if em.Hidden() || !em.Match(s.target, opts) || !em.Eligible(level) {
			continue
		}
		eligible = true
		v := s.vars.Replace(em.Value)
		if s.event.Set(em.Key, v, level) {
			s.accept(string(em.Key), v, res)
		}
	}

	links, opts := r.LinkMaps()
	for _, lm := range links {
		if lm.Hidden() || !lm.Match(s.target, opts) || !lm.Eligible(level) {
			continue
		}
		eligible = true
		v := s.vars.Replace(lm.URL)
		if s.link.Set(rule.LinkTarget, v, level) {
			s.accept(string(rule.LinkTarget), v, res)
		}
	}
	return eligible
}

func (s *CellState) accept(key, value string, res rule.Resolution) {
	s.matched = true
	s.status[key] = value
	if res.Level > s.globalLevel {
		s.globalLevel = res.Level
		s.highestValue = res.Value
		s.highestFormatted = res.Formatted
	}
}

func (s *CellState) addRule(alias string) {
	if !slices.Contains(s.matchedRules, alias) {
		s.matchedRules = append(s.matchedRules, alias)
	}
}

func (s *CellState) addMetric(name string) {
	if !slices.Contains(s.matchedMetrics, name) {
		s.matchedMetrics = append(s.matchedMetrics, name)
	}
}

// Apply commits the cycle. Nothing happens for a cell that neither matched
// this cycle nor was applied before.
func (s *CellState) Apply() {
	if !s.matched && !s.changed {
		return
	}
	defer metrics.Timer(metrics.ApplyCycle)()
	s.changed = true
	s.shape.Apply()
	s.tooltip.Apply()
	s.icon.Apply()
	s.event.Apply()
	s.text.Apply()
	s.link.Apply()
}

// Reset reverts every group and forgets the cycle.
func (s *CellState) Reset() {
	s.shape.Reset()
	s.tooltip.Reset()
	s.icon.Reset()
	s.event.Reset()
	s.text.Reset()
	s.link.Reset()
	s.clearCycle()
	s.changed = false
}

// Level returns the highest level accepted this cycle, -1 when none.
func (s *CellState) Level() int { return s.globalLevel }

// TextLevel returns Level as text, empty when no level was accepted.
func (s *CellState) TextLevel() string {
	if s.globalLevel < 0 {
		return ""
	}
	return strconv.Itoa(s.globalLevel)
}

// HighestValue returns the raw value that produced Level.
func (s *CellState) HighestValue() any { return s.highestValue }

// HighestFormatted returns the formatted value that produced Level.
func (s *CellState) HighestFormatted() string { return s.highestFormatted }

// Status returns the last accepted value for a property key.
func (s *CellState) Status(key string) (string, bool) {
	v, ok := s.status[key]
	return v, ok
}

// StatusMap returns a copy of every accepted value.
func (s *CellState) StatusMap() map[string]string {
	return maps.Clone(s.status)
}

// MatchedRules returns the aliases of the rules that styled the cell.
func (s *CellState) MatchedRules() []string { return slices.Clone(s.matchedRules) }

// MatchedMetrics returns the names of the metrics evaluated for the cell.
func (s *CellState) MatchedMetrics() []string { return slices.Clone(s.matchedMetrics) }

// Matched reports whether any write was accepted this cycle.
func (s *CellState) Matched() bool { return s.matched }

// Changed reports whether the cell has been applied since the last Reset.
func (s *CellState) Changed() bool { return s.changed }

func (s *CellState) Shape() *ShapeGroup     { return s.shape }
func (s *CellState) Text() *TextGroup       { return s.text }
func (s *CellState) Link() *LinkGroup       { return s.link }
func (s *CellState) Icon() *IconGroup       { return s.icon }
func (s *CellState) Tooltip() *TooltipGroup { return s.tooltip }
func (s *CellState) Event() *EventGroup     { return s.event }
