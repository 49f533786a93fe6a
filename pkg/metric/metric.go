// Package metric models the values rules are evaluated against: time series
// and tables, their aggregations, and an ordered registry that notifies
// subscribers when metrics appear or disappear.
package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Kind distinguishes series from tables.
type Kind string

const (
	KindSerie Kind = "serie"
	KindTable Kind = "table"
)

// Aggregation reduces a metric to one value.
type Aggregation string

const (
	AggCurrent   Aggregation = "current"
	AggFirst     Aggregation = "first"
	AggLast      Aggregation = "last"
	AggMin       Aggregation = "min"
	AggMax       Aggregation = "max"
	AggTotal     Aggregation = "total"
	AggAvg       Aggregation = "avg"
	AggCount     Aggregation = "count"
	AggDelta     Aggregation = "delta"
	AggRange     Aggregation = "range"
	AggDiff      Aggregation = "diff"
	AggLastTime  Aggregation = "last_time"
	AggFirstTime Aggregation = "first_time"
)

// Aggregations lists every supported aggregation.
var Aggregations = []Aggregation{
	AggCurrent, AggFirst, AggLast, AggMin, AggMax, AggTotal, AggAvg,
	AggCount, AggDelta, AggRange, AggDiff, AggLastTime, AggFirstTime,
}

// ValidAggregation reports whether a is supported.
func ValidAggregation(a Aggregation) bool {
	for _, known := range Aggregations {
		if a == known {
			return true
		}
	}
	return false
}

var (
	// ErrNoData is returned when a metric has no usable points.
	ErrNoData = errors.New("no data")
	// ErrNotNumeric is returned when a numeric aggregation meets text.
	ErrNotNumeric = errors.New("value is not numeric")
	// ErrUnknownAggregation is returned for an unsupported aggregation.
	ErrUnknownAggregation = errors.New("unknown aggregation")
	// ErrNoColumn is returned when a table lacks the requested column.
	ErrNoColumn = errors.New("no such column")
)

// Metric is one named data stream. Value returns a float64, a string or a
// time.Time depending on the data and the aggregation.
type Metric interface {
	ID() string
	Name() string
	Kind() Kind
	Value(agg Aggregation, column string) (any, error)
}

// Point is one sample. Value is nil, a float64 or a string.
type Point struct {
	Time  time.Time `json:"time"`
	Value any       `json:"value"`
}

// Series is a named time series.
type Series struct {
	SeriesName string  `json:"name"`
	Points     []Point `json:"points"`
}

// NewSeries builds a series; values are normalized with Normalize.
func NewSeries(name string, points ...Point) *Series {
	s := &Series{SeriesName: name, Points: make([]Point, 0, len(points))}
	for _, p := range points {
		s.Points = append(s.Points, Point{Time: p.Time, Value: Normalize(p.Value)})
	}
	return s
}

func (s *Series) ID() string   { return string(KindSerie) + ":" + s.SeriesName }
func (s *Series) Name() string { return s.SeriesName }
func (s *Series) Kind() Kind   { return KindSerie }

// Value aggregates the series. The column is ignored.
func (s *Series) Value(agg Aggregation, _ string) (any, error) {
	return aggregate(s.Points, agg)
}

// Table is a result set addressed by its reference id.
type Table struct {
	RefID   string   `json:"refId"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (t *Table) ID() string   { return string(KindTable) + ":" + t.RefID }
func (t *Table) Name() string { return t.RefID }
func (t *Table) Kind() Kind   { return KindTable }

// Value aggregates one column across rows. A column named "time" (or
// "Time") supplies point timestamps when present.
func (t *Table) Value(agg Aggregation, column string) (any, error) {
	col := -1
	timeCol := -1
	for i, c := range t.Columns {
		if c == column {
			col = i
		}
		if strings.EqualFold(c, "time") {
			timeCol = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("table %s: %w: %q", t.RefID, ErrNoColumn, column)
	}
	points := make([]Point, 0, len(t.Rows))
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		p := Point{Value: Normalize(row[col])}
		if timeCol >= 0 && timeCol < len(row) {
			p.Time = ParseTime(row[timeCol])
		}
		points = append(points, p)
	}
	return aggregate(points, agg)
}

// Normalize converts decoded JSON/SQL values to nil, float64 or string.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ParseTime reads epoch milliseconds, RFC 3339 or a plain date.
func ParseTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case float64:
		return time.UnixMilli(int64(x))
	case int64:
		return time.UnixMilli(x)
	case int:
		return time.UnixMilli(int64(x))
	case string:
		if ms, err := strconv.ParseInt(x, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// ToFloat converts a metric value to a number.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, x)
		}
		return f, nil
	case time.Time:
		return float64(x.UnixMilli()), nil
	case nil:
		return 0, ErrNoData
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func aggregate(points []Point, agg Aggregation) (any, error) {
	var present []Point
	for _, p := range points {
		if p.Value != nil {
			present = append(present, p)
		}
	}
	switch agg {
	case AggCount:
		return float64(len(present)), nil
	case AggCurrent, AggLast:
		if len(present) == 0 {
			return nil, ErrNoData
		}
		return present[len(present)-1].Value, nil
	case AggFirst:
		if len(present) == 0 {
			return nil, ErrNoData
		}
		return present[0].Value, nil
	case AggLastTime, AggFirstTime:
		if len(present) == 0 {
			return nil, ErrNoData
		}
		p := present[0]
		if agg == AggLastTime {
			p = present[len(present)-1]
		}
		if p.Time.IsZero() {
			return nil, fmt.Errorf("%s: %w: points carry no timestamps", agg, ErrNoData)
		}
		return p.Time, nil
	case AggMin, AggMax, AggTotal, AggAvg, AggDelta, AggRange, AggDiff:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregation, agg)
	}

	xs := make([]float64, 0, len(present))
	for _, p := range present {
		f, err := ToFloat(p.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", agg, err)
		}
		if math.IsNaN(f) {
			continue
		}
		xs = append(xs, f)
	}
	if len(xs) == 0 {
		return nil, ErrNoData
	}
	switch agg {
	case AggMin:
		return floats.Min(xs), nil
	case AggMax:
		return floats.Max(xs), nil
	case AggTotal:
		return floats.Sum(xs), nil
	case AggAvg:
		return stat.Mean(xs, nil), nil
	case AggRange:
		return floats.Max(xs) - floats.Min(xs), nil
	case AggDiff:
		return xs[len(xs)-1] - xs[0], nil
	default: // AggDelta
		return delta(xs), nil
	}
}

// delta sums increases, treating a drop as a counter reset.
func delta(xs []float64) float64 {
	var total float64
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		if d < 0 {
			d = xs[i]
		}
		total += d
	}
	return total
}

// SortByName orders metrics by kind, then name.
func SortByName(ms []Metric) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Kind() != ms[j].Kind() {
			return ms[i].Kind() < ms[j].Kind()
		}
		return ms[i].Name() < ms[j].Name()
	})
}
