package datasource

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func silenceErrors(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	debug.SetErrorOutput(&buf)
	t.Cleanup(func() { debug.SetErrorOutput(os.Stderr) })
	return &buf
}

func current(t *testing.T, m metric.Metric) any {
	t.Helper()
	v, err := m.Value(metric.AggCurrent, "value")
	if err != nil {
		t.Fatalf("%s: %v", m.ID(), err)
	}
	return v
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		path string
		want SourceType
		err  bool
	}{
		{"m.json", SourceTypeJSON, false},
		{"m.JSONL", SourceTypeJSONL, false},
		{"m.ndjson", SourceTypeJSONL, false},
		{"m.db", SourceTypeSQLite, false},
		{"m.sqlite3", SourceTypeSQLite, false},
		{"m.csv", "", true},
	}
	for _, tt := range tests {
		got, err := DetectType(tt.path)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("DetectType(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	doc := `{
	  "series": [
	    {"name": "cpu-1", "points": [
	      {"time": 1718186400000, "value": 40},
	      {"time": "2024-06-12T10:01:00Z", "value": 65}
	    ]}
	  ],
	  "tables": [
	    {"refId": "B", "columns": ["host", "value"], "rows": [["web", 12], ["db", 30]]}
	  ]
	}`
	ms, err := decodeJSON([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d metrics, want 2", len(ms))
	}
	s := ms[0].(*metric.Series)
	if s.Name() != "cpu-1" || len(s.Points) != 2 || s.Points[0].Time.IsZero() {
		t.Errorf("series = %+v", s)
	}
	if got := current(t, s); got != 65.0 {
		t.Errorf("current = %v, want 65", got)
	}
	if ms[1].ID() != "table:B" {
		t.Errorf("table id = %s", ms[1].ID())
	}

	if _, err := decodeJSON([]byte(`{"series":[{"points":[]}]}`)); err == nil {
		t.Error("series without name accepted")
	}
	if _, err := decodeJSON([]byte(`{`)); err == nil {
		t.Error("truncated document accepted")
	}
}

func TestDecodeJSONL(t *testing.T) {
	buf := silenceErrors(t)
	lines := strings.Join([]string{
		`{"metric":"cpu-1","time":1718186400000,"value":40}`,
		``,
		`{"metric":"mem","time":1718186400000,"value":"low"}`,
		`not json`,
		`{"time":1718186400000,"value":1}`,
		`{"metric":"cpu-1","time":1718186460000,"value":65}`,
	}, "\n")
	ms, err := decodeJSONL(strings.NewReader(lines), "samples.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].Name() != "cpu-1" || ms[1].Name() != "mem" {
		t.Fatalf("metrics = %v", ms)
	}
	if got := current(t, ms[0]); got != 65.0 {
		t.Errorf("cpu-1 current = %v, want 65", got)
	}
	if !strings.Contains(buf.String(), "samples.jsonl:4") || !strings.Contains(buf.String(), "samples.jsonl:5") {
		t.Errorf("warnings = %q, want lines 4 and 5", buf.String())
	}
}

func createSamplesDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	stmts := []string{
		`CREATE TABLE samples (metric TEXT NOT NULL, ts, value)`,
		`INSERT INTO samples VALUES ('cpu-1', 1718186460000, 65)`,
		`INSERT INTO samples VALUES ('cpu-1', 1718186400000, 40)`,
		`INSERT INTO samples VALUES ('disk', '2024-06-12T10:00:00Z', 'degraded')`,
		`INSERT INTO samples VALUES ('disk', '2024-06-12T10:05:00Z', NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
}

func TestSQLiteReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")
	createSamplesDB(t, path)

	r, err := NewSQLiteReader(Source{Type: SourceTypeSQLite, Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx := context.Background()
	n, err := r.CountSamples(ctx)
	if err != nil || n != 4 {
		t.Fatalf("CountSamples = %d, %v", n, err)
	}
	ms, err := r.LoadMetrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].Name() != "cpu-1" || ms[1].Name() != "disk" {
		t.Fatalf("metrics = %v", ms)
	}
	cpu := ms[0].(*metric.Series)
	if !cpu.Points[0].Time.Before(cpu.Points[1].Time) {
		t.Error("points not ordered by timestamp")
	}
	if got := current(t, cpu); got != 65.0 {
		t.Errorf("cpu-1 current = %v, want 65", got)
	}
	if got := current(t, ms[1]); got != "degraded" {
		t.Errorf("disk current = %v, want the last non-null value", got)
	}

	if _, err := NewSQLiteReader(Source{Type: SourceTypeJSON, Path: path}); err == nil {
		t.Error("non-sqlite source accepted")
	}
}

func TestLoad_MergesAndReportsFailures(t *testing.T) {
	buf := silenceErrors(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	createSamplesDB(t, db)
	jsonl := writeFile(t, dir, "b.jsonl", `{"metric":"cpu-1","time":1718186520000,"value":90}`+"\n")
	doc := writeFile(t, dir, "c.json", `{"series":[{"name":"mem","points":[{"time":0,"value":12}]}]}`)
	broken := writeFile(t, dir, "d.json", `{"series":`)

	sources := []Source{{Path: db}, {Path: jsonl}, {Path: doc}, {Path: broken}, {Path: filepath.Join(dir, "missing.jsonl")}}
	ms, results, err := Load(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("failed sources = %d, want 2", failed)
	}
	if !strings.Contains(buf.String(), "d.json") {
		t.Errorf("error log = %q, want the broken source", buf.String())
	}

	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	if strings.Join(names, ",") != "cpu-1,disk,mem" {
		t.Fatalf("merged = %v", names)
	}
	cpu := ms[0].(*metric.Series)
	if len(cpu.Points) != 3 || current(t, cpu) != 90.0 {
		t.Errorf("cpu-1 merged = %+v", cpu.Points)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Load(ctx, []Source{{Path: "x.json"}})
	if err == nil {
		t.Error("cancelled load returned no error")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.jsonl", "")
	writeFile(t, dir, "a.json", "{}")
	writeFile(t, dir, "a.json.backup", "{}")
	writeFile(t, dir, ".hidden.json", "{}")
	writeFile(t, dir, "notes.txt", "")
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || filepath.Base(got[0].Path) != "a.json" || got[1].Type != SourceTypeJSONL {
		t.Errorf("Discover = %v", got)
	}
	if got[0].ModTime.IsZero() {
		t.Error("ModTime not set")
	}
}

func TestCompare(t *testing.T) {
	t0 := time.Unix(0, 0)
	s := func(name string, v float64) metric.Metric {
		return metric.NewSeries(name, metric.Point{Time: t0, Value: v})
	}
	old := []metric.Metric{s("a", 1), s("b", 2), s("c", 3)}
	next := []metric.Metric{s("a", 1), s("b", 5), s("d", 4)}

	d := Compare(old, next)
	if d.Empty() {
		t.Fatal("diff is empty")
	}
	if len(d.Added) != 1 || d.Added[0] != "serie:d" || len(d.Removed) != 1 || d.Removed[0] != "serie:c" {
		t.Errorf("added %v removed %v", d.Added, d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Old != "2" || d.Changed[0].New != "5" {
		t.Errorf("changed = %+v", d.Changed)
	}
	if !strings.Contains(d.Summary(), "serie:b: 2 -> 5") {
		t.Errorf("summary = %q", d.Summary())
	}
	if !Compare(old, old).Empty() {
		t.Error("identical batches differ")
	}
}
