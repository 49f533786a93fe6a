// Package metrics keeps in-memory timings for the phases of a refresh:
// rule evaluation, the per-cell cycle, the apply phase, metric loading, rule
// loading and snapshot rendering. Every rule also owns a timing of its own.
//
// Collection is on unless FS_METRICS=0.
package metrics

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("FS_METRICS") != "0")
}

// Enabled reports whether timings are recorded.
func Enabled() bool { return enabled.Load() }

// SetEnabled switches collection on or off.
func SetEnabled(e bool) { enabled.Store(e) }

// TimingMetric accumulates durations of one operation. It is safe for
// concurrent use.
type TimingMetric struct {
	name  string
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
	min   atomic.Int64 // 0 until the first sample
}

// NewTimingMetric creates a metric that is not part of the phase set, such
// as the timing of a single rule.
func NewTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one sample.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.total.Add(ns)
	for old := m.max.Load(); ns > old; old = m.max.Load() {
		if m.max.CompareAndSwap(old, ns) {
			break
		}
	}
	for old := m.min.Load(); old == 0 || ns < old; old = m.min.Load() {
		if m.min.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of samples.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// Total returns the sum of all samples.
func (m *TimingMetric) Total() time.Duration { return time.Duration(m.total.Load()) }

// Average returns the mean sample, or 0 without samples.
func (m *TimingMetric) Average() time.Duration {
	n := m.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.total.Load() / n)
}

// Stats returns the current figures in milliseconds.
func (m *TimingMetric) Stats() TimingStats {
	return TimingStats{
		Name:    m.name,
		Count:   m.Count(),
		TotalMs: ms(m.Total()),
		AvgMs:   ms(m.Average()),
		MaxMs:   ms(time.Duration(m.max.Load())),
		MinMs:   ms(time.Duration(m.min.Load())),
	}
}

// Reset drops every sample.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.total.Store(0)
	m.max.Store(0)
	m.min.Store(0)
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// TimingStats is the serializable view of a TimingMetric. Rule reports
// embed it.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer starts timing m; call the result to record the sample.
//
//	defer metrics.Timer(metrics.CellCycle)()
func Timer(m *TimingMetric) func() {
	return TimerWithCallback(m, nil)
}

// TimerWithCallback is Timer that also hands the sample to cb, typically a
// debug log line.
func TimerWithCallback(m *TimingMetric, cb func(time.Duration)) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		m.Record(d)
		if cb != nil {
			cb(d)
		}
	}
}

var (
	phaseMu sync.Mutex
	phases  []*TimingMetric
)

func phase(name string) *TimingMetric {
	m := NewTimingMetric(name)
	phaseMu.Lock()
	phases = append(phases, m)
	phaseMu.Unlock()
	return m
}

// Refresh phases.
var (
	RuleEvaluation = phase("rule_evaluation")
	CellCycle      = phase("cell_cycle")
	ApplyCycle     = phase("apply_cycle")
	MetricLoad     = phase("metric_load")
	RuleLoad       = phase("rule_load")
	SnapshotRender = phase("snapshot_render")
)

// Phases returns the refresh phase metrics in declaration order.
func Phases() []*TimingMetric {
	phaseMu.Lock()
	defer phaseMu.Unlock()
	return append([]*TimingMetric(nil), phases...)
}

// ResetPhases clears every phase metric.
func ResetPhases() {
	for _, m := range Phases() {
		m.Reset()
	}
}

// PhaseStats returns the stats of the phases that have samples.
func PhaseStats() []TimingStats {
	var out []TimingStats
	for _, m := range Phases() {
		if m.Count() > 0 {
			out = append(out, m.Stats())
		}
	}
	return out
}
