package state

import (
	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/reconcile"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// TooltipGroup gates the tooltip payload. Unlike the other groups it is
// detached at the start of every cycle and rebuilt during evaluation.
type TooltipGroup struct {
	r       *reconcile.Reconciler[rule.TooltipKey, bool]
	target  TooltipTarget
	payload *diagram.Tooltip
}

type tooltipEffects struct{ g *TooltipGroup }

func (tooltipEffects) Default(rule.TooltipKey) bool { return false }

func (e tooltipEffects) Apply(_ rule.TooltipKey, on bool) error {
	if on && !e.g.payload.Empty() {
		e.g.target.SetTooltip(e.g.payload)
	}
	return nil
}

func (e tooltipEffects) Revert(rule.TooltipKey, bool) error {
	e.g.target.SetTooltip(nil)
	return nil
}

// NewTooltipGroup creates a detached tooltip group.
func NewTooltipGroup(t TooltipTarget) *TooltipGroup {
	g := &TooltipGroup{target: t}
	g.r = reconcile.New[rule.TooltipKey, bool]("tooltip", tooltipEffects{g})
	return g
}

// Set proposes showing the tooltip at level.
func (g *TooltipGroup) Set(level int) bool {
	return g.r.Set(rule.TooltipGate, true, level)
}

// Add appends the entry for one rule/metric outcome to the payload.
func (g *TooltipGroup) Add(r *rule.Rule, m metric.Metric, res rule.Resolution) {
	opts := r.Options()
	if g.payload == nil {
		g.payload = diagram.NewTooltip(opts.TpDirection)
	}
	if opts.Tooltip {
		label := opts.TooltipLabel
		if label == "" {
			if opts.MetricType == metric.KindTable {
				label = opts.Column
			} else {
				label = m.Name()
			}
		}
		entry := diagram.TooltipEntry{
			Rule:   r.Alias(),
			Label:  label,
			Metric: m.Name(),
			Value:  res.Formatted,
			Level:  res.Level,
		}
		if opts.TooltipColors {
			entry.Color = res.Color
		}
		if opts.TpGraph {
			entry.Graph = &diagram.GraphOptions{
				Type:  opts.TpGraphType,
				Size:  opts.TpGraphSize,
				Low:   opts.TpGraphLow,
				High:  opts.TpGraphHigh,
				Scale: opts.TpGraphScale,
			}
			entry.Points = seriesPoints(m)
		}
		g.payload.Add(entry)
	}
	if opts.TpMetadata {
		g.payload.Metadata = g.target.MetadataMap()
	}
}

func seriesPoints(m metric.Metric) []float64 {
	s, ok := m.(*metric.Series)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if f, ok := p.Value.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// Payload returns the payload built this cycle.
func (g *TooltipGroup) Payload() *diagram.Tooltip { return g.payload }

// State returns the lifecycle state of the gate.
func (g *TooltipGroup) State() reconcile.State { return g.r.State(rule.TooltipGate) }

// Level returns the level of the gate.
func (g *TooltipGroup) Level() int { return g.r.Level(rule.TooltipGate) }

// Prepare detaches the previous payload.
func (g *TooltipGroup) Prepare() {
	g.r.Prepare()
	g.r.Reset()
	g.payload = nil
}

// Apply attaches the payload when the gate matched.
func (g *TooltipGroup) Apply() {
	if g.r.State(rule.TooltipGate) != reconcile.Matched {
		return
	}
	if on, _ := g.r.MatchValue(rule.TooltipGate); on {
		g.r.ApplyKey(rule.TooltipGate)
	}
}

// Reset detaches the payload.
func (g *TooltipGroup) Reset() {
	g.r.Reset()
	g.payload = nil
}
