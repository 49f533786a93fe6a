// Package testutil provides fixture generators for flowcharts: diagrams laid
// out on a grid, metric series and threshold rules. All generators produce
// deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// GeneratorConfig controls fixture generation.
type GeneratorConfig struct {
	Seed     int64         // Random seed for determinism (0 = use current time)
	BaseTime time.Time     // Time of the first point (default: fixed time)
	Step     time.Duration // Spacing between points (default: 1m)
	CellSize float64       // Width of generated cells; height is half (default: 120)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		BaseTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Step:     time.Minute,
		CellSize: 120,
	}
}

// Generator creates fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	def := DefaultConfig()
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = def.BaseTime
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// CellID names the i-th generated cell.
func CellID(i int) string {
	return fmt.Sprintf("n%d", i)
}

// MetricName names the metric feeding the i-th generated cell.
func MetricName(i int) string {
	return "cpu-" + CellID(i)
}

// Grid builds an initialized diagram of cols*rows cells laid out left to
// right, top to bottom, each filled #eeeeee.
func (g *Generator) Grid(cols, rows int) *diagram.Diagram {
	w := g.cfg.CellSize
	h := w / 2
	d := &diagram.Diagram{Title: fmt.Sprintf("grid %dx%d", cols, rows)}
	for i := 0; i < cols*rows; i++ {
		c := diagram.NewCell(CellID(i), fmt.Sprintf("Node %d", i), map[string]string{
			"fillColor":   "#eeeeee",
			"strokeColor": "#333333",
		})
		c.Geometry = diagram.Geometry{
			X:      float64(i%cols) * w * 1.5,
			Y:      float64(i/cols) * h * 2,
			Width:  w,
			Height: h,
		}
		d.Cells = append(d.Cells, c)
	}
	if err := d.Init(); err != nil {
		panic(err) // ids are unique by construction
	}
	return d
}

// Walk returns a random walk of n points clamped to [lo, hi], rounded to two
// decimals.
func (g *Generator) Walk(name string, n int, lo, hi float64) *metric.Series {
	if n <= 0 {
		return metric.NewSeries(name)
	}
	points := make([]metric.Point, n)
	v := lo + g.rng.Float64()*(hi-lo)
	span := (hi - lo) / 10
	for i := range points {
		v = math.Max(lo, math.Min(hi, v+(g.rng.Float64()*2-1)*span))
		points[i] = metric.Point{
			Time:  g.cfg.BaseTime.Add(time.Duration(i) * g.cfg.Step),
			Value: math.Round(v*100) / 100,
		}
	}
	return metric.NewSeries(name, points...)
}

// Constant returns a series of n points all equal to v.
func (g *Generator) Constant(name string, n int, v float64) *metric.Series {
	points := make([]metric.Point, n)
	for i := range points {
		points[i] = metric.Point{Time: g.cfg.BaseTime.Add(time.Duration(i) * g.cfg.Step), Value: v}
	}
	return metric.NewSeries(name, points...)
}

// Batch returns one series per value, named MetricName(i), sorted by name.
func (g *Generator) Batch(values ...float64) []metric.Metric {
	out := make([]metric.Metric, len(values))
	for i, v := range values {
		out[i] = g.Constant(MetricName(i), 3, v)
	}
	metric.SortByName(out)
	return out
}

// ThresholdRule builds a number rule over metricPattern that colors the
// fillColor of cells matching cellPattern green, then orange at 50, then red
// at 80.
func ThresholdRule(id, metricPattern, cellPattern string) rule.Data {
	d := rule.DefaultData()
	d.ID = id
	d.Alias = id
	d.Pattern = metricPattern
	d.NumberTH = []rule.ThresholdData[float64]{
		{Color: "green", Value: 0},
		{Color: "orange", Value: 50},
		{Color: "red", Value: 80},
	}
	d.Invert = true
	d.Maps.Shapes.DataList = []rule.MapData{{Pattern: cellPattern, Style: "fillColor"}}
	return d
}

// CellRules returns one ThresholdRule per cell, binding MetricName(i) to
// CellID(i), ordered by index.
func CellRules(n int) []rule.Data {
	out := make([]rule.Data, n)
	for i := range out {
		out[i] = ThresholdRule("rule-"+CellID(i), MetricName(i), CellID(i))
		out[i].Order = i + 1
	}
	return out
}
