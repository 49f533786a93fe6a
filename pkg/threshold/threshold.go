// Package threshold implements ordered severity scales: a list of
// (color, value) boundaries where index 0 is a catch-all base entry.
//
// Number scales are assumed sorted ascending and resolve to the tightest
// lower bound, stopping at the first visible boundary the value does not
// reach. String and date scales make no ordering assumption: every visible
// entry is tested and the last one that matches wins.
package threshold

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/flowstate/pkg/colors"
	"github.com/vanderheijden86/flowstate/pkg/debug"
)

// Default colors of the three-band scales.
const (
	ColorCritical = "rgba(245, 54, 54, 0.9)"
	ColorWarning  = "rgba(237, 129, 40, 0.89)"
	ColorOK       = "rgba(50, 172, 45, 0.97)"
)

// ErrIndexOutOfRange is returned when a threshold position does not exist.
var ErrIndexOutOfRange = errors.New("threshold index out of range")

// Threshold is one severity boundary.
type Threshold[T any] struct {
	color  string
	value  T
	hidden bool
}

// New creates a visible threshold.
func New[T any](color string, value T) *Threshold[T] {
	return &Threshold[T]{color: color, value: value}
}

func (t *Threshold[T]) Color() string     { return t.color }
func (t *Threshold[T]) Value() T          { return t.value }
func (t *Threshold[T]) Hidden() bool      { return t.hidden }
func (t *Threshold[T]) SetColor(c string) { t.color = c }
func (t *Threshold[T]) SetValue(v T)      { t.value = v }
func (t *Threshold[T]) Hide()             { t.hidden = true }
func (t *Threshold[T]) Show()             { t.hidden = false }

// SetHidden sets the hidden flag.
func (t *Threshold[T]) SetHidden(hidden bool) { t.hidden = hidden }

// Clone returns an independent copy.
func (t *Threshold[T]) Clone() *Threshold[T] {
	c := *t
	return &c
}

// Scale is the ordered list shared by all value domains.
type Scale[T any] struct {
	items []*Threshold[T]
}

// Len returns the number of thresholds, hidden ones included.
func (s *Scale[T]) Len() int { return len(s.items) }

// At returns the threshold at i, or nil when i is out of range.
func (s *Scale[T]) At(i int) *Threshold[T] {
	if i < 0 || i >= len(s.items) {
		return nil
	}
	return s.items[i]
}

// Items returns the thresholds in order. The slice is a copy; the
// thresholds are shared.
func (s *Scale[T]) Items() []*Threshold[T] {
	out := make([]*Threshold[T], len(s.items))
	copy(out, s.items)
	return out
}

// ColorAt returns the color at i, or "" when i is out of range.
func (s *Scale[T]) ColorAt(i int) string {
	if th := s.At(i); th != nil {
		return th.color
	}
	return ""
}

// Colors lists the colors in scale order.
func (s *Scale[T]) Colors() []string {
	out := make([]string, len(s.items))
	for i, th := range s.items {
		out[i] = th.color
	}
	return out
}

// InvertColors reverses the color order while keeping values in place.
func (s *Scale[T]) InvertColors() {
	n := len(s.items)
	for i := 0; i < n/2; i++ {
		s.items[i].color, s.items[n-1-i].color = s.items[n-1-i].color, s.items[i].color
	}
}

// Add appends a threshold and returns it.
func (s *Scale[T]) Add(color string, value T) *Threshold[T] {
	th := New(color, value)
	s.items = append(s.items, th)
	return th
}

// Remove deletes the threshold at i.
func (s *Scale[T]) Remove(i int) error {
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("remove %d of %d: %w", i, len(s.items), ErrIndexOutOfRange)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// SetHidden hides or shows the threshold at i.
func (s *Scale[T]) SetHidden(i int, hidden bool) error {
	th := s.At(i)
	if th == nil {
		return fmt.Errorf("hide %d of %d: %w", i, len(s.items), ErrIndexOutOfRange)
	}
	th.hidden = hidden
	return nil
}

// Clear removes every threshold.
func (s *Scale[T]) Clear() { s.items = nil }

// insert splits the band after position after. The new entry defaults to a
// 50% blend between the reference entry and its successor, or a clone of
// the reference at the edges of the scale. Inserting after the base uses
// the first real boundary as reference. The position of the new entry is
// returned.
func (s *Scale[T]) insert(after int, mid func(a, b T) T) int {
	n := len(s.items)
	if n == 0 {
		s.items = []*Threshold[T]{New(ColorOK, *new(T))}
		return 0
	}
	if after < 0 {
		after = 0
	}
	if after > n-1 {
		after = n - 1
	}
	ref := after
	if after == 0 && n > 1 {
		ref = 1
	}
	base := s.items[ref]
	th := base.Clone()
	th.hidden = false
	if ref < n-1 && after != 0 {
		next := s.items[ref+1]
		c, err := colors.Interpolate(base.color, next.color, 0.5)
		if err != nil {
			debug.Log("threshold: insert after %d: %v", after, err)
		} else {
			th.color = c
		}
		if mid != nil {
			th.value = mid(base.value, next.value)
		}
	}
	pos := after + 1
	s.items = append(s.items, nil)
	copy(s.items[pos+1:], s.items[pos:])
	s.items[pos] = th
	return pos
}

// Editable is the domain-independent view of a scale used by rule-level
// mutators.
type Editable interface {
	Len() int
	ColorAt(i int) string
	Colors() []string
	InvertColors()
	Insert(after int) int
	Remove(i int) error
	SetHidden(i int, hidden bool) error
	Clear()
}

// Level maps a scale index to a severity level. Non-inverted scales are
// authored ascending in value and descending in severity. -1 stays -1.
func Level(index, length int, invert bool) int {
	if index < 0 || index >= length {
		return -1
	}
	if invert {
		return index
	}
	return length - 1 - index
}

// IndexForLevel is the inverse of Level.
func IndexForLevel(level, length int, invert bool) int {
	if level < 0 || level >= length {
		return -1
	}
	if invert {
		return level
	}
	return length - 1 - level
}
