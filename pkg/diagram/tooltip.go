package diagram

import (
	"fmt"
	"sort"
	"strings"
)

// GraphOptions describes the sparkline drawn under a tooltip entry.
type GraphOptions struct {
	Type  string   `json:"type"`
	Size  string   `json:"size"`
	Low   *float64 `json:"low,omitempty"`
	High  *float64 `json:"high,omitempty"`
	Scale string   `json:"scale"`
}

// TooltipEntry is one rule/metric line of a tooltip.
type TooltipEntry struct {
	Rule   string        `json:"rule"`
	Label  string        `json:"label"`
	Metric string        `json:"metric"`
	Value  string        `json:"value"`
	Color  string        `json:"color,omitempty"`
	Level  int           `json:"level"`
	Graph  *GraphOptions `json:"graph,omitempty"`
	Points []float64     `json:"points,omitempty"`
}

// Tooltip is the payload attached to a cell.
type Tooltip struct {
	Direction string            `json:"direction"`
	Entries   []TooltipEntry    `json:"entries"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewTooltip creates an empty payload laid out vertically ("v") or
// horizontally ("h").
func NewTooltip(direction string) *Tooltip {
	if direction != "h" {
		direction = "v"
	}
	return &Tooltip{Direction: direction}
}

// Add appends an entry.
func (t *Tooltip) Add(e TooltipEntry) { t.Entries = append(t.Entries, e) }

// Empty reports whether there is nothing to show.
func (t *Tooltip) Empty() bool { return t == nil || (len(t.Entries) == 0 && len(t.Metadata) == 0) }

// Markdown renders the tooltip for terminal display.
func (t *Tooltip) Markdown() string {
	if t.Empty() {
		return ""
	}
	var b strings.Builder
	for _, e := range t.Entries {
		label := e.Label
		if label == "" {
			label = e.Metric
		}
		if t.Direction == "h" {
			fmt.Fprintf(&b, "**%s** %s · ", label, e.Value)
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %s", label, e.Value)
		if e.Rule != "" {
			fmt.Fprintf(&b, " _(%s, level %d)_", e.Rule, e.Level)
		}
		b.WriteString("\n")
	}
	if len(t.Metadata) > 0 {
		keys := make([]string, 0, len(t.Metadata))
		for k := range t.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n| key | value |\n|---|---|\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %s |\n", k, t.Metadata[k])
		}
	}
	return strings.TrimSuffix(b.String(), " · ")
}
