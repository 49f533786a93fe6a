package testutil

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
)

// AssertStyle verifies one style key of a cell.
func AssertStyle(t *testing.T, d *diagram.Diagram, id, key, want string) {
	t.Helper()
	c, ok := d.Cell(id)
	if !ok {
		t.Errorf("cell %s not found", id)
		return
	}
	if got := c.Style[key]; got != want {
		t.Errorf("cell %s %s = %q, want %q", id, key, got, want)
	}
}

// Fills returns the fillColor of every cell keyed by id.
func Fills(d *diagram.Diagram) map[string]string {
	out := make(map[string]string, len(d.Cells))
	for _, c := range d.Cells {
		out[c.ID] = c.Style["fillColor"]
	}
	return out
}

// AssertJSONEqual compares two values after JSON round-tripping.
// Useful for comparing structs that may have different Go representations
// but equivalent JSON forms.
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// WriteFile writes content to dir/name, creating parent dirs, and returns
// the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// WriteJSON encodes v into dir/name.
func WriteJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", name, err)
	}
	return WriteFile(t, dir, name, string(data))
}

// WriteYAML encodes v into dir/name.
func WriteYAML(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", name, err)
	}
	return WriteFile(t, dir, name, string(data))
}
