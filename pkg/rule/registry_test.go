package rule

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/flowstate/pkg/metric"
)

func withOrder(alias string, order int) Data {
	d := trafficLight()
	d.Alias = alias
	d.Order = order
	return d
}

func aliases(rules []*Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Alias()
	}
	return out
}

func TestRegistry_OrderAndEvents(t *testing.T) {
	reg := NewRegistry(metric.NewRegistry())
	var events []string
	reg.Subscribe("cells", func(e Event) { events = append(events, e.Kind.String()+":"+e.Rule.Alias()) })

	for _, d := range []Data{withOrder("b", 2), withOrder("a", 1), withOrder("c", 2)} {
		if _, err := reg.Add(d); err != nil {
			t.Fatal(err)
		}
	}
	got := aliases(reg.All())
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	b, _ := reg.ByAlias("b")
	updated := withOrder("b2", 0)
	nb, err := reg.Update(b.UID(), updated)
	if err != nil {
		t.Fatal(err)
	}
	if nb.UID() != b.UID() || aliases(reg.All())[0] != "b2" {
		t.Errorf("update should keep the uid and re-sort, got %v", aliases(reg.All()))
	}
	if !reg.Remove(nb.UID()) || reg.Remove(nb.UID()) {
		t.Error("Remove should succeed once")
	}

	wantEvents := []string{"created:b", "created:a", "created:c", "changed:b2", "deleted:b2"}
	if len(events) != len(wantEvents) {
		t.Fatalf("events = %v", events)
	}
	for i := range wantEvents {
		if events[i] != wantEvents[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], wantEvents[i])
		}
	}
}

func TestRegistry_ReplaceIsAtomicOnError(t *testing.T) {
	reg := NewRegistry(nil)
	if _, err := reg.Add(withOrder("keep", 1)); err != nil {
		t.Fatal(err)
	}
	bad := withOrder("bad", 2)
	bad.Type = "nope"
	if err := reg.Replace([]Data{withOrder("new", 1), bad}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Replace error = %v", err)
	}
	if reg.Len() != 1 || reg.All()[0].Alias() != "keep" {
		t.Error("a failed Replace must leave the rule set untouched")
	}
	if err := reg.Replace([]Data{withOrder("x", 1), withOrder("y", 1)}); err != nil {
		t.Fatal(err)
	}
	if got := aliases(reg.All()); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("after Replace = %v", got)
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	reg := NewRegistry(nil)
	d := withOrder("a", 1)
	d.ID = "fixed"
	if _, err := reg.Add(d); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Add(d); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("duplicate add error = %v", err)
	}
}

func TestRegistry_AttachesRulesToMetrics(t *testing.T) {
	metrics := metric.NewRegistry()
	reg := NewRegistry(metrics)
	r, err := reg.Add(trafficLight())
	if err != nil {
		t.Fatal(err)
	}
	metrics.Add(metric.NewSeries("cpu-1"))
	if len(r.Metrics()) != 1 {
		t.Fatal("registered rule should follow metric creation")
	}
	reg.Remove(r.UID())
	metrics.Add(metric.NewSeries("cpu-2"))
	if len(r.Metrics()) != 0 {
		t.Error("removed rule must release its metric subscription")
	}
}

func TestRegistry_BeginAggregationWindow(t *testing.T) {
	reg := NewRegistry(nil)
	r, _ := reg.Add(trafficLight())
	r.Observe(Resolution{Level: 2, Color: "red"})
	reg.BeginAggregationWindow()
	if r.Aggregate().Level != -1 {
		t.Error("aggregation window should reset every rule")
	}
}

func TestChangeKind_DistinctFromEventKind(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{RuleCreated, "created"},
		{RuleChanged, "changed"},
		{RuleDeleted, "deleted"},
		{ChangeKind(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ChangeKind(%d) = %q, want %q", int(tt.kind), got, tt.want)
		}
	}

	k, err := ParseEventKey("height")
	if err != nil {
		t.Fatal(err)
	}
	var kind EventKind = k.Kind()
	if kind != EventKindHeight || !k.Animated() {
		t.Errorf("height event kind = %d, animated %v", kind, k.Animated())
	}
}
