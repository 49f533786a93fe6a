// Package engine wires a diagram, a rule registry and a metric registry
// into a refreshable flowchart.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/rule"
	"github.com/vanderheijden86/flowstate/pkg/state"
)

// Flowchart owns one CellState per diagram cell. Cycles are serialized.
type Flowchart struct {
	mu      sync.Mutex
	id      string
	diagram *diagram.Diagram
	rules   *rule.Registry
	metrics *metric.Registry
	cells   []*state.CellState
	byID    map[string]*state.CellState
	now     func() time.Time

	// set by rule registry events, consumed under mu
	stale atomic.Bool

	cycles    int
	lastCycle time.Time
}

// Option configures a Flowchart.
type Option func(*Flowchart)

// WithClock replaces time.Now for date variables and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Flowchart) { f.now = now }
}

// New builds a flowchart over an initialized diagram. The rules registry
// must be bound to reg.
func New(d *diagram.Diagram, rules *rule.Registry, reg *metric.Registry, opts ...Option) *Flowchart {
	f := &Flowchart{
		id:      "flowchart-" + uuid.NewString(),
		diagram: d,
		rules:   rules,
		metrics: reg,
		byID:    make(map[string]*state.CellState, len(d.Cells)),
		now:     time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	for _, c := range d.Cells {
		s := state.New(c.ID, c)
		s.SetClock(f.now)
		f.cells = append(f.cells, s)
		f.byID[c.ID] = s
	}
	rules.Subscribe(f.id, f.onRuleEvent)
	f.rebind()
	return f
}

// Close stops listening to the rule registry.
func (f *Flowchart) Close() {
	f.rules.Unsubscribe(f.id)
}

func (f *Flowchart) onRuleEvent(ev rule.Event) {
	debug.Log("flowchart: rule %s %s", ev.Rule.Alias(), ev.Kind)
	f.stale.Store(true)
}

// rebind makes every cell's bound rules follow registry order.
func (f *Flowchart) rebind() {
	f.stale.Store(false)
	all := f.rules.All()
	live := make(map[string]bool, len(all))
	for _, r := range all {
		live[r.UID()] = true
	}
	for _, s := range f.cells {
		for _, r := range s.Rules() {
			if !live[r.UID()] {
				s.RemoveRule(r.UID())
			}
		}
		for _, r := range all {
			s.UpdateRule(r)
		}
	}
}

func (f *Flowchart) syncLocked() {
	if f.stale.Load() {
		f.rebind()
	}
}

// Refresh runs one cycle with batch as the new metric set.
func (f *Flowchart) Refresh(ctx context.Context, batch []metric.Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	debug.Section(fmt.Sprintf("cycle %d", f.cycles+1))
	defer debug.LogEnterExit("flowchart refresh")()
	f.syncLocked()

	f.rules.BeginAggregationWindow()
	for _, s := range f.cells {
		s.Prepare()
	}
	f.metrics.Replace(batch)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh interrupted after prepare: %w", err)
	}
	for _, s := range f.cells {
		s.Evaluate()
	}
	for _, s := range f.cells {
		s.Apply()
	}
	f.cycles++
	f.lastCycle = f.now()
	debug.Log("flowchart: cycle %d over %d metrics", f.cycles, len(batch))
	return nil
}

// ReloadRules replaces the rule set. On error the previous rules stay.
func (f *Flowchart) ReloadRules(ds []rule.Data) error {
	if err := f.rules.Replace(ds); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked()
	return nil
}

// Reset reverts every cell and forgets the cycles.
func (f *Flowchart) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.cells {
		s.Reset()
	}
	f.diagram.Restore()
	f.cycles = 0
}

// Diagram returns the underlying diagram. Callers must not mutate it while
// a refresh may run.
func (f *Flowchart) Diagram() *diagram.Diagram { return f.diagram }

// Rules returns the rule registry.
func (f *Flowchart) Rules() *rule.Registry { return f.rules }

// Cell returns the state of one cell.
func (f *Flowchart) Cell(id string) (*state.CellState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked()
	s, ok := f.byID[id]
	return s, ok
}

// Cycles returns the number of completed refreshes.
func (f *Flowchart) Cycles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}
