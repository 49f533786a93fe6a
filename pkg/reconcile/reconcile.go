// Package reconcile provides the per-key, level-gated state machine used to
// merge writes from many rules onto one visual property family.
//
// Every key moves through three states:
//
//	Unset   --Set-->          Matched   (a candidate value is pending)
//	Matched --Apply-->        Changed   (value committed, watch for reversion)
//	Changed --Prepare+Set-->  Matched   (still matched next cycle)
//	Changed --Prepare+Apply-> Unset     (not matched again: default restored)
//
// A key that stops matching is therefore reverted one cycle after it was
// last applied, never in the middle of an evaluation pass. Set only accepts
// a write whose level is at least the level already recorded this cycle;
// at equal levels the last writer wins.
//
// A Reconciler is not safe for concurrent use. Cycles are serialized by the
// caller.
package reconcile

import (
	"fmt"

	"github.com/vanderheijden86/flowstate/pkg/debug"
)

// NoLevel is the match level of a key nothing has written to this cycle.
const NoLevel = -1

// State is the exposed lifecycle state of one key.
type State int

const (
	Unset State = iota
	Matched
	Changed
)

func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case Matched:
		return "matched"
	case Changed:
		return "changed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Effects binds a Reconciler to a rendering backend.
type Effects[K comparable, V any] interface {
	// Default reads the value the backend shows when nothing matches.
	// It is called once per key, when the key is registered.
	Default(key K) V
	// Apply commits a matched value.
	Apply(key K, value V) error
	// Revert restores the default value.
	Revert(key K, value V) error
}

type entry[V any] struct {
	def     V
	value   V
	level   int
	matched bool
	changed bool
}

// Reconciler tracks keys in registration order.
type Reconciler[K comparable, V any] struct {
	name    string
	effects Effects[K, V]
	keys    []K
	entries map[K]*entry[V]
	acked   map[K]struct{}
}

// New creates an empty reconciler. The name only appears in logs.
func New[K comparable, V any](name string, effects Effects[K, V]) *Reconciler[K, V] {
	return &Reconciler[K, V]{
		name:    name,
		effects: effects,
		entries: make(map[K]*entry[V]),
		acked:   make(map[K]struct{}),
	}
}

// Name returns the name given to New.
func (r *Reconciler[K, V]) Name() string { return r.name }

// Register starts tracking key, capturing its default from the backend.
// It reports whether the key was new; registering twice keeps the first
// default.
func (r *Reconciler[K, V]) Register(key K) bool {
	if _, ok := r.entries[key]; ok {
		return false
	}
	def := r.effects.Default(key)
	r.entries[key] = &entry[V]{def: def, value: def, level: NoLevel}
	r.keys = append(r.keys, key)
	return true
}

// Registered reports whether key is tracked.
func (r *Reconciler[K, V]) Registered(key K) bool {
	_, ok := r.entries[key]
	return ok
}

// Keys returns the tracked keys in registration order.
func (r *Reconciler[K, V]) Keys() []K {
	out := make([]K, len(r.keys))
	copy(out, r.keys)
	return out
}

// Set proposes value for key at level. The write is accepted when no higher
// level has been recorded for the key this cycle. Unknown keys are
// registered first.
func (r *Reconciler[K, V]) Set(key K, value V, level int) bool {
	r.Register(key)
	e := r.entries[key]
	if e.level > level {
		return false
	}
	e.value = value
	e.level = level
	e.matched = true
	return true
}

// Apply commits or reverts every key once per cycle.
func (r *Reconciler[K, V]) Apply() {
	for _, key := range r.keys {
		r.ApplyKey(key)
	}
}

// ApplyKey commits a matched key, or reverts a changed key that was not
// matched again. A key is handled at most once between two Prepare calls.
func (r *Reconciler[K, V]) ApplyKey(key K) {
	e, ok := r.entries[key]
	if !ok || r.Acked(key) {
		return
	}
	switch {
	case e.matched:
		if err := r.effects.Apply(key, e.value); err != nil {
			debug.Error("%s: apply %v: %v", r.name, key, err)
		}
		r.Ack(key)
	case e.changed:
		r.ResetKey(key)
		r.Ack(key)
	}
}

// Ack marks key as handled for this cycle. A matched key becomes Changed;
// a changed key becomes Unset without touching the backend.
func (r *Reconciler[K, V]) Ack(key K) {
	e, ok := r.entries[key]
	if !ok {
		return
	}
	switch {
	case e.matched:
		e.matched = false
		e.changed = true
	case e.changed:
		e.changed = false
	}
	r.acked[key] = struct{}{}
}

// Acked reports whether key was handled since the last Prepare.
func (r *Reconciler[K, V]) Acked(key K) bool {
	_, ok := r.acked[key]
	return ok
}

// Unset clears the transient match of every key. Changed flags are kept.
func (r *Reconciler[K, V]) Unset() {
	for _, key := range r.keys {
		r.UnsetKey(key)
	}
}

// UnsetKey clears the transient match of key.
func (r *Reconciler[K, V]) UnsetKey(key K) {
	e, ok := r.entries[key]
	if !ok {
		return
	}
	e.value = e.def
	e.level = NoLevel
	e.matched = false
}

// Reset reverts every key to its default.
func (r *Reconciler[K, V]) Reset() {
	for _, key := range r.keys {
		r.ResetKey(key)
	}
}

// ResetKey reverts key to its default on the backend and forgets its match.
func (r *Reconciler[K, V]) ResetKey(key K) {
	e, ok := r.entries[key]
	if !ok {
		return
	}
	r.UnsetKey(key)
	if err := r.effects.Revert(key, e.def); err != nil {
		debug.Error("%s: revert %v: %v", r.name, key, err)
	}
	e.changed = false
}

// Prepare opens a new cycle. Acknowledgements are cleared and, when any key
// is pending reversion, every key's match is cleared so evaluation starts
// from a clean slate.
func (r *Reconciler[K, V]) Prepare() {
	clear(r.acked)
	if r.Changed() {
		r.Unset()
	}
}

// State returns the lifecycle state of key.
func (r *Reconciler[K, V]) State(key K) State {
	e, ok := r.entries[key]
	switch {
	case !ok:
		return Unset
	case e.matched:
		return Matched
	case e.changed:
		return Changed
	default:
		return Unset
	}
}

// DefaultValue returns the default captured at registration.
func (r *Reconciler[K, V]) DefaultValue(key K) (V, bool) {
	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.def, true
}

// MatchValue returns the current candidate value, which is the default when
// nothing matched.
func (r *Reconciler[K, V]) MatchValue(key K) (V, bool) {
	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// TargetValue returns what the backend should show after Apply: the match
// value for a matched key, the default for a changed one, nothing otherwise.
func (r *Reconciler[K, V]) TargetValue(key K) (V, bool) {
	var zero V
	e, ok := r.entries[key]
	switch {
	case !ok:
		return zero, false
	case e.matched:
		return e.value, true
	case e.changed:
		return e.def, true
	default:
		return zero, false
	}
}

// Level returns the match level of key, NoLevel when unmatched.
func (r *Reconciler[K, V]) Level(key K) int {
	if e, ok := r.entries[key]; ok {
		return e.level
	}
	return NoLevel
}

// MaxLevel returns the highest match level across keys.
func (r *Reconciler[K, V]) MaxLevel() int {
	level := NoLevel
	for _, e := range r.entries {
		level = max(level, e.level)
	}
	return level
}

// Matched reports whether any key holds a pending match.
func (r *Reconciler[K, V]) Matched() bool {
	for _, e := range r.entries {
		if e.matched {
			return true
		}
	}
	return false
}

// Changed reports whether any key is pending reversion.
func (r *Reconciler[K, V]) Changed() bool {
	for _, e := range r.entries {
		if e.changed {
			return true
		}
	}
	return false
}
