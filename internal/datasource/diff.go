package datasource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/flowstate/pkg/metric"
)

// BatchDiff describes how a metric set changed between two loads
type BatchDiff struct {
	// Added contains metric ids present only in the new batch
	Added []string `json:"added,omitempty"`
	// Removed contains metric ids present only in the old batch
	Removed []string `json:"removed,omitempty"`
	// Changed contains metrics whose current value differs
	Changed []ValueChange `json:"changed,omitempty"`
	// CountOld and CountNew are the batch sizes
	CountOld int `json:"count_old"`
	CountNew int `json:"count_new"`
}

// ValueChange is the current value of one metric in both batches
type ValueChange struct {
	ID  string `json:"id"`
	Old string `json:"old"`
	New string `json:"new"`
}

// Empty reports whether the batches are equivalent
func (d BatchDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Summary returns a human-readable summary of the differences
func (d BatchDiff) Summary() string {
	if d.Empty() {
		return fmt.Sprintf("metrics unchanged (%d)", d.CountNew)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "metrics %d -> %d:", d.CountOld, d.CountNew)
	if len(d.Added) > 0 {
		fmt.Fprintf(&b, " +%d", len(d.Added))
	}
	if len(d.Removed) > 0 {
		fmt.Fprintf(&b, " -%d", len(d.Removed))
	}
	if len(d.Changed) > 0 {
		fmt.Fprintf(&b, " ~%d", len(d.Changed))
		if len(d.Changed) <= 5 {
			for _, c := range d.Changed {
				fmt.Fprintf(&b, "\n  - %s: %s -> %s", c.ID, c.Old, c.New)
			}
		}
	}
	return b.String()
}

func currentValue(m metric.Metric) string {
	v, err := m.Value(metric.AggCurrent, "")
	if err != nil {
		return "-"
	}
	return fmt.Sprint(v)
}

// Compare computes the difference between two metric batches. Tables are
// compared by presence only.
func Compare(old, next []metric.Metric) BatchDiff {
	mapOld := make(map[string]metric.Metric, len(old))
	for _, m := range old {
		mapOld[m.ID()] = m
	}
	mapNew := make(map[string]metric.Metric, len(next))
	for _, m := range next {
		mapNew[m.ID()] = m
	}

	diff := BatchDiff{CountOld: len(mapOld), CountNew: len(mapNew)}
	for id := range mapOld {
		if _, ok := mapNew[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	for id, b := range mapNew {
		a, ok := mapOld[id]
		if !ok {
			diff.Added = append(diff.Added, id)
			continue
		}
		if b.Kind() != metric.KindSerie {
			continue
		}
		if va, vb := currentValue(a), currentValue(b); va != vb {
			diff.Changed = append(diff.Changed, ValueChange{ID: id, Old: va, New: vb})
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Slice(diff.Changed, func(i, j int) bool { return diff.Changed[i].ID < diff.Changed[j].ID })
	return diff
}
