package state

import "testing"

func TestVariables_Replace(t *testing.T) {
	v := NewVariables()
	if got := v.Replace("${_value}"); got != "${_value}" {
		t.Errorf("empty set replaced %q", got)
	}

	v.Set(VarMetric, "cpu-1")
	v.SetInt(VarLevel, 2)
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"${_metric}", "cpu-1"},
		{"m=${_metric}&l=${_level}", "m=cpu-1&l=2"},
		{"${_metric}${_metric}", "cpu-1cpu-1"},
		{"${missing}", "${missing}"},
		{"$_metric {_metric}", "$_metric {_metric}"},
	}
	for _, tt := range tests {
		if got := v.Replace(tt.in); got != tt.want {
			t.Errorf("Replace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	v.Clear()
	if _, ok := v.Get(VarMetric); ok || len(v.All()) != 0 {
		t.Error("Clear left values behind")
	}
}
