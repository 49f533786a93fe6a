package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/colors"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/pattern"
)

// NumberScale compares with ">=" and stops at the first visible miss.
type NumberScale struct {
	Scale[float64]
}

// DefaultNumberScale returns the red/orange/green 0/50/80 scale.
func DefaultNumberScale() *NumberScale {
	s := &NumberScale{}
	s.Add(ColorCritical, 0)
	s.Add(ColorWarning, 50)
	s.Add(ColorOK, 80)
	return s
}

// IndexFor returns the index of the tightest lower bound for v, 0 when v is
// below every boundary, and -1 for an empty scale or a non-finite value.
func (s *NumberScale) IndexFor(v float64) int {
	if len(s.items) == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	index := 0
	for i := 1; i < len(s.items); i++ {
		th := s.items[i]
		if th.hidden {
			continue
		}
		if v < th.value {
			break
		}
		index = i
	}
	return index
}

// ColorFor returns the display color for v. With gradient on, values inside
// an inner band are blended towards the next boundary's color.
func (s *NumberScale) ColorFor(v float64, gradient bool) (string, error) {
	index := s.IndexFor(v)
	if index < 0 {
		return "", fmt.Errorf("number scale: no color for %v", v)
	}
	th := s.items[index]
	if !gradient || index == 0 || index == len(s.items)-1 {
		return th.color, nil
	}
	next := s.items[index+1]
	return colors.Interpolate(th.color, next.color, colors.Ratio(th.value, next.value, v))
}

// Insert splits a band and interpolates both color and value.
func (s *NumberScale) Insert(after int) int {
	return s.insert(after, func(a, b float64) float64 { return a + (b-a)*0.5 })
}

// StringScale compares with the pattern matcher; the last visible match wins.
type StringScale struct {
	Scale[string]
}

// DefaultStringScale returns the any/warning/success-or-ok scale.
func DefaultStringScale() *StringScale {
	s := &StringScale{}
	s.Add(ColorCritical, "/.*/")
	s.Add(ColorWarning, "/.*warning.*/")
	s.Add(ColorOK, "/.*(success|ok).*/")
	return s
}

// IndexFor scans every entry.
func (s *StringScale) IndexFor(v string) int {
	if len(s.items) == 0 {
		return -1
	}
	index := 0
	for i := 1; i < len(s.items); i++ {
		th := s.items[i]
		if !th.hidden && pattern.Match(v, th.value, true) {
			index = i
		}
	}
	return index
}

// Insert clones the reference value and blends the color.
func (s *StringScale) Insert(after int) int {
	return s.insert(after, nil)
}

// DateScale holds date boundaries, either relative to now ("-1d", "+2h",
// "0d") or absolute ("2024-01-31", RFC 3339). A value matches an entry when
// it is at or after the resolved boundary; the last visible match wins.
type DateScale struct {
	Scale[string]
	now func() time.Time
}

// DefaultDateScale returns the today/yesterday/last-week scale.
func DefaultDateScale() *DateScale {
	s := &DateScale{}
	s.Add(ColorCritical, "0d")
	s.Add(ColorWarning, "-1d")
	s.Add(ColorOK, "-1w")
	return s
}

// SetClock replaces time.Now for relative boundaries.
func (s *DateScale) SetClock(now func() time.Time) { s.now = now }

// Clock returns the clock set with SetClock, or nil.
func (s *DateScale) Clock() func() time.Time { return s.now }

func (s *DateScale) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// IndexFor scans every entry.
func (s *DateScale) IndexFor(t time.Time) int {
	if len(s.items) == 0 || t.IsZero() {
		return -1
	}
	now := s.clock()
	index := 0
	for i := 1; i < len(s.items); i++ {
		th := s.items[i]
		if th.hidden {
			continue
		}
		bound, err := ResolveDate(th.value, now)
		if err != nil {
			debug.Log("date scale: entry %d: %v", i, err)
			continue
		}
		if !t.Before(bound) {
			index = i
		}
	}
	return index
}

// Insert clones the reference value and blends the color.
func (s *DateScale) Insert(after int) int {
	return s.insert(after, nil)
}

var relativeDate = regexp.MustCompile(`^([+-]?\d+)([smhdwMy])$`)

// ResolveDate turns a date boundary into an instant.
func ResolveDate(boundary string, now time.Time) (time.Time, error) {
	if m := relativeDate.FindStringSubmatch(boundary); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("date boundary %q: %w", boundary, err)
		}
		switch m[2] {
		case "s":
			return now.Add(time.Duration(n) * time.Second), nil
		case "m":
			return now.Add(time.Duration(n) * time.Minute), nil
		case "h":
			return now.Add(time.Duration(n) * time.Hour), nil
		case "d":
			return now.AddDate(0, 0, n), nil
		case "w":
			return now.AddDate(0, 0, 7*n), nil
		case "M":
			return now.AddDate(0, n, 0), nil
		case "y":
			return now.AddDate(n, 0, 0), nil
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, boundary, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date boundary %q: unrecognized format", boundary)
}

var (
	_ Editable = (*NumberScale)(nil)
	_ Editable = (*StringScale)(nil)
	_ Editable = (*DateScale)(nil)
)
