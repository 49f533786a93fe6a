package datasource

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
)

// DefaultMaxLineSize is the longest JSONL line read (10MB).
const DefaultMaxLineSize = 1024 * 1024 * 10

// rawPoint accepts a timestamp as epoch milliseconds, RFC 3339 or a date.
type rawPoint struct {
	Time  any `json:"time"`
	Value any `json:"value"`
}

type rawSeries struct {
	Name   string     `json:"name"`
	Points []rawPoint `json:"points"`
}

// document is the JSON source format.
type document struct {
	Series []rawSeries     `json:"series"`
	Tables []*metric.Table `json:"tables"`
}

// sample is one JSONL line.
type sample struct {
	Metric string `json:"metric"`
	Time   any    `json:"time"`
	Value  any    `json:"value"`
}

func readJSON(path string) ([]metric.Metric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeJSON(data)
}

func decodeJSON(data []byte) ([]metric.Metric, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid metrics document: %w", err)
	}
	out := make([]metric.Metric, 0, len(doc.Series)+len(doc.Tables))
	for i, s := range doc.Series {
		if s.Name == "" {
			return nil, fmt.Errorf("series %d: missing name", i)
		}
		points := make([]metric.Point, 0, len(s.Points))
		for _, p := range s.Points {
			points = append(points, metric.Point{Time: metric.ParseTime(p.Time), Value: p.Value})
		}
		out = append(out, metric.NewSeries(s.Name, points...))
	}
	for i, t := range doc.Tables {
		if t == nil || t.RefID == "" {
			return nil, fmt.Errorf("table %d: missing refId", i)
		}
		for _, row := range t.Rows {
			for j := range row {
				row[j] = metric.Normalize(row[j])
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func readJSONL(path string) ([]metric.Metric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeJSONL(f, path)
}

// decodeJSONL groups samples into series in order of first appearance.
// Malformed lines are skipped with a warning.
func decodeJSONL(r io.Reader, name string) ([]metric.Metric, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), DefaultMaxLineSize)

	var order []string
	points := make(map[string][]metric.Point)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s sample
		if err := json.Unmarshal(line, &s); err != nil {
			debug.Error("%s:%d: skipping malformed sample: %v", name, lineNum, err)
			continue
		}
		if s.Metric == "" {
			debug.Error("%s:%d: skipping sample without metric", name, lineNum)
			continue
		}
		if _, ok := points[s.Metric]; !ok {
			order = append(order, s.Metric)
		}
		points[s.Metric] = append(points[s.Metric], metric.Point{Time: metric.ParseTime(s.Time), Value: s.Value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s at line %d: %w", name, lineNum, err)
	}

	out := make([]metric.Metric, 0, len(order))
	for _, m := range order {
		out = append(out, metric.NewSeries(m, points[m]...))
	}
	return out, nil
}
