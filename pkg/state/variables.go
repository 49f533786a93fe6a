package state

import (
	"maps"
	"regexp"
	"strconv"
)

// Cycle variables available to text replacements, link urls and event
// values as ${name}.
const (
	VarRule      = "_rule"
	VarMetric    = "_metric"
	VarValue     = "_value"
	VarFormatted = "_formatted"
	VarLevel     = "_level"
	VarColor     = "_color"
	VarDate      = "_date"
)

var varRef = regexp.MustCompile(`\$\{(\w+)\}`)

// Variables holds the values of the rule/metric pair being evaluated.
type Variables struct {
	values map[string]string
}

// NewVariables creates an empty set.
func NewVariables() *Variables {
	return &Variables{values: make(map[string]string)}
}

// Set stores one value.
func (v *Variables) Set(name, value string) { v.values[name] = value }

// SetInt stores an integer value.
func (v *Variables) SetInt(name string, value int) { v.values[name] = strconv.Itoa(value) }

// Get returns a value.
func (v *Variables) Get(name string) (string, bool) {
	s, ok := v.values[name]
	return s, ok
}

// Clear drops every value.
func (v *Variables) Clear() { clear(v.values) }

// All returns a copy of the values.
func (v *Variables) All() map[string]string { return maps.Clone(v.values) }

// Replace substitutes every known ${name}. Unknown references are kept.
func (v *Variables) Replace(s string) string {
	if len(v.values) == 0 {
		return s
	}
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := v.values[ref[2:len(ref)-1]]; ok {
			return val
		}
		return ref
	})
}
