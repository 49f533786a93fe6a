package metric

import "sync"

// EventKind tells subscribers what happened to a metric.
type EventKind int

const (
	Created EventKind = iota
	Deleted
)

func (k EventKind) String() string {
	if k == Deleted {
		return "deleted"
	}
	return "created"
}

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	Metric Metric
}

// Listener receives registry events synchronously.
type Listener func(Event)

type subscription struct {
	owner string
	fn    Listener
}

// Registry holds the current metrics in insertion order. Updating a metric
// that already exists replaces it in place without an event: membership
// only changes on Created and Deleted.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	metrics map[string]Metric
	subs    []subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Subscribe registers fn under owner and replays a Created event for every
// metric already present.
func (r *Registry) Subscribe(owner string, fn Listener) {
	r.mu.Lock()
	r.subs = append(r.subs, subscription{owner: owner, fn: fn})
	existing := r.allLocked()
	r.mu.Unlock()
	for _, m := range existing {
		fn(Event{Kind: Created, Metric: m})
	}
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

// Add inserts or replaces m.
func (r *Registry) Add(m Metric) {
	r.mu.Lock()
	id := m.ID()
	_, exists := r.metrics[id]
	r.metrics[id] = m
	if !exists {
		r.order = append(r.order, id)
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()
	if !exists {
		notify(subs, Event{Kind: Created, Metric: m})
	}
}

// Remove deletes the metric with the given id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	m, ok := r.metrics[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.metrics, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()
	notify(subs, Event{Kind: Deleted, Metric: m})
	return true
}

// Replace makes batch the new metric set: metrics missing from batch are
// deleted, new ones created, existing ones replaced in place.
func (r *Registry) Replace(batch []Metric) {
	keep := make(map[string]bool, len(batch))
	for _, m := range batch {
		keep[m.ID()] = true
	}
	for _, id := range r.IDs() {
		if !keep[id] {
			r.Remove(id)
		}
	}
	for _, m := range batch {
		r.Add(m)
	}
}

// Get returns the metric with the given id.
func (r *Registry) Get(id string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[id]
	return m, ok
}

// All returns the metrics in insertion order.
func (r *Registry) All() []Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLocked()
}

// IDs returns the metric ids in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) allLocked() []Metric {
	out := make([]Metric, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.metrics[id])
	}
	return out
}

func (r *Registry) subscribersLocked() []subscription {
	out := make([]subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

func notify(subs []subscription, ev Event) {
	for _, s := range subs {
		s.fn(ev)
	}
}
