package rule

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
)

// ChangeKind tells subscribers how the rule set changed.
type ChangeKind int

const (
	RuleCreated ChangeKind = iota
	RuleChanged
	RuleDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case RuleCreated:
		return "created"
	case RuleChanged:
		return "changed"
	case RuleDeleted:
		return "deleted"
	}
	return "unknown"
}

// Event is delivered to subscribers after the registry changed. Previous is
// set for RuleChanged.
type Event struct {
	Kind     ChangeKind
	Rule     *Rule
	Previous *Rule
}

// Listener receives registry events synchronously.
type Listener func(Event)

type subscription struct {
	owner string
	fn    Listener
}

// Registry owns the rule set. Rules are kept sorted by Order; rules with
// the same order keep their insertion order. Every rule is attached to the
// metric registry for as long as it is registered.
type Registry struct {
	mu      sync.RWMutex
	metrics *metric.Registry
	rules   []*Rule
	subs    []subscription
}

// NewRegistry creates an empty rule registry bound to a metric registry.
func NewRegistry(m *metric.Registry) *Registry {
	return &Registry{metrics: m}
}

// Subscribe registers fn under owner.
func (r *Registry) Subscribe(owner string, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, subscription{owner: owner, fn: fn})
}

// Unsubscribe removes every listener registered under owner.
func (r *Registry) Unsubscribe(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.owner != owner {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

// Add validates d and registers the new rule.
func (r *Registry) Add(d Data) (*Rule, error) {
	defer metrics.Timer(metrics.RuleLoad)()
	rl, err := New(d)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.indexLocked(rl.UID()) >= 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("rule %q: %w: duplicate id %s", d.Alias, ErrInvalidRule, rl.UID())
	}
	r.insertLocked(rl)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	r.attach(rl)
	debug.Log("rules: created %s (%s)", rl.Alias(), rl.UID())
	notify(subs, Event{Kind: RuleCreated, Rule: rl})
	return rl, nil
}

// Update replaces the rule with the given uid by a rule built from d.
func (r *Registry) Update(uid string, d Data) (*Rule, error) {
	d.ID = uid
	rl, err := New(d)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	i := r.indexLocked(uid)
	if i < 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("rule %s: %w: not registered", uid, ErrInvalidRule)
	}
	prev := r.rules[i]
	r.rules = slices.Delete(r.rules, i, i+1)
	r.insertLocked(rl)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	prev.Detach()
	r.attach(rl)
	debug.Log("rules: changed %s (%s)", rl.Alias(), uid)
	notify(subs, Event{Kind: RuleChanged, Rule: rl, Previous: prev})
	return rl, nil
}

// Remove unregisters the rule with the given uid and releases its metric
// subscription.
func (r *Registry) Remove(uid string) bool {
	r.mu.Lock()
	i := r.indexLocked(uid)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	rl := r.rules[i]
	r.rules = slices.Delete(r.rules, i, i+1)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	rl.Detach()
	debug.Log("rules: deleted %s (%s)", rl.Alias(), uid)
	notify(subs, Event{Kind: RuleDeleted, Rule: rl})
	return true
}

// Replace swaps the whole rule set. Every record is validated before the
// registry is touched, so an invalid set leaves the current rules in place.
func (r *Registry) Replace(ds []Data) error {
	built := make([]*Rule, 0, len(ds))
	seen := make(map[string]bool, len(ds))
	for i, d := range ds {
		rl, err := New(d)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[rl.UID()] {
			return fmt.Errorf("rule %d: %w: duplicate id %s", i, ErrInvalidRule, rl.UID())
		}
		seen[rl.UID()] = true
		built = append(built, rl)
	}
	for _, rl := range r.All() {
		r.Remove(rl.UID())
	}
	for _, rl := range built {
		r.mu.Lock()
		r.insertLocked(rl)
		subs := r.subscribersLocked()
		r.mu.Unlock()
		r.attach(rl)
		notify(subs, Event{Kind: RuleCreated, Rule: rl})
	}
	debug.Log("rules: replaced with %d rules", len(built))
	return nil
}

// Get returns the rule with the given uid.
func (r *Registry) Get(uid string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(uid); i >= 0 {
		return r.rules[i], true
	}
	return nil, false
}

// ByAlias returns the first rule with the given alias.
func (r *Registry) ByAlias(alias string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rl := range r.rules {
		if rl.Alias() == alias {
			return rl, true
		}
	}
	return nil, false
}

// All returns the rules in evaluation order.
func (r *Registry) All() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.rules)
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Data returns the persisted records in evaluation order.
func (r *Registry) Data() []Data {
	rules := r.All()
	out := make([]Data, len(rules))
	for i, rl := range rules {
		out[i] = rl.Data()
	}
	return out
}

// BeginAggregationWindow resets the aggregate of every rule.
func (r *Registry) BeginAggregationWindow() {
	for _, rl := range r.All() {
		rl.ResetAggregate()
	}
}

func (r *Registry) attach(rl *Rule) {
	if r.metrics != nil {
		rl.Attach(r.metrics)
	}
}

func (r *Registry) indexLocked(uid string) int {
	return slices.IndexFunc(r.rules, func(rl *Rule) bool { return rl.UID() == uid })
}

// insertLocked places rl after every rule whose order is not greater.
func (r *Registry) insertLocked(rl *Rule) {
	i := len(r.rules)
	for j, other := range r.rules {
		if other.Order() > rl.Order() {
			i = j
			break
		}
	}
	r.rules = slices.Insert(r.rules, i, rl)
}

func (r *Registry) subscribersLocked() []subscription {
	return slices.Clone(r.subs)
}

func notify(subs []subscription, ev Event) {
	for _, s := range subs {
		s.fn(ev)
	}
}
