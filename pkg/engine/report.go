package engine

import (
	"maps"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
)

// CellReport is the outcome of the last cycle for one cell.
type CellReport struct {
	ID             string            `json:"id"`
	Label          string            `json:"label"`
	Link           string            `json:"link,omitempty"`
	Level          int               `json:"level"`
	Value          string            `json:"value,omitempty"`
	Style          map[string]string `json:"style,omitempty"`
	Geometry       diagram.Geometry  `json:"geometry"`
	Hidden         bool              `json:"hidden,omitempty"`
	Overlay        bool              `json:"overlay,omitempty"`
	Blinking       bool              `json:"blinking,omitempty"`
	MatchedRules   []string          `json:"matched_rules,omitempty"`
	MatchedMetrics []string          `json:"matched_metrics,omitempty"`
	Tooltip        *diagram.Tooltip  `json:"tooltip,omitempty"`
}

// RuleReport is the aggregate of one rule over the last cycle.
type RuleReport struct {
	UID       string              `json:"uid"`
	Alias     string              `json:"alias"`
	Order     int                 `json:"order"`
	Hidden    bool                `json:"hidden,omitempty"`
	Level     int                 `json:"level"`
	Color     string              `json:"color,omitempty"`
	Formatted string              `json:"formatted,omitempty"`
	Metrics   int                 `json:"metrics"`
	Exec      metrics.TimingStats `json:"exec"`
}

// Report is a point-in-time view of the flowchart.
type Report struct {
	Title       string       `json:"title"`
	GeneratedAt time.Time    `json:"generated_at"`
	Cycles      int          `json:"cycles"`
	LastCycle   time.Time    `json:"last_cycle"`
	MaxLevel    int          `json:"max_level"`
	Cells       []CellReport `json:"cells"`
	Rules       []RuleReport `json:"rules"`
}

// Snapshot reports every cell in diagram order and every rule in
// evaluation order.
func (f *Flowchart) Snapshot() Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked()

	rep := Report{
		Title:       f.diagram.Title,
		GeneratedAt: f.now(),
		Cycles:      f.cycles,
		LastCycle:   f.lastCycle,
		MaxLevel:    -1,
	}
	for _, s := range f.cells {
		c, ok := f.diagram.Cell(s.ID())
		if !ok {
			continue
		}
		rep.MaxLevel = max(rep.MaxLevel, s.Level())
		rep.Cells = append(rep.Cells, CellReport{
			ID:             c.ID,
			Label:          c.Label,
			Link:           c.Link,
			Level:          s.Level(),
			Value:          s.HighestFormatted(),
			Style:          maps.Clone(c.Style),
			Geometry:       c.Geometry,
			Hidden:         c.Hidden,
			Overlay:        c.Overlay(),
			Blinking:       c.Blink() > 0,
			MatchedRules:   s.MatchedRules(),
			MatchedMetrics: s.MatchedMetrics(),
			Tooltip:        c.Tooltip(),
		})
	}
	for _, r := range f.rules.All() {
		agg := r.Aggregate()
		rep.Rules = append(rep.Rules, RuleReport{
			UID:       r.UID(),
			Alias:     r.Alias(),
			Order:     r.Order(),
			Hidden:    r.Hidden(),
			Level:     agg.Level,
			Color:     agg.Color,
			Formatted: agg.Formatted,
			Metrics:   len(r.Metrics()),
			Exec:      r.ExecStats(),
		})
	}
	return rep
}

// JSON encodes the report with indentation.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
