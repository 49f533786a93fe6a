package datasource

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
)

// MaxParallel bounds the number of sources read at once.
const MaxParallel = 8

// LoadResult contains the outcome of reading one source
type LoadResult struct {
	Source  Source
	Metrics []metric.Metric
	Err     error
}

// LoadSource reads one source, dispatching on its type.
func LoadSource(ctx context.Context, source Source) ([]metric.Metric, error) {
	if err := source.Normalize(); err != nil {
		return nil, err
	}
	switch source.Type {
	case SourceTypeSQLite:
		reader, err := NewSQLiteReader(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite source %s: %w", source.Path, err)
		}
		defer reader.Close()
		return reader.LoadMetrics(ctx)
	case SourceTypeJSONL:
		return readJSONL(source.Path)
	case SourceTypeJSON:
		return readJSON(source.Path)
	default:
		return nil, fmt.Errorf("unknown source type: %s", source.Type)
	}
}

// Load reads every source in parallel and merges the results. A failing
// source is reported in its LoadResult and logged; it never aborts the
// others. The error is only set when ctx ends before loading finished.
func Load(ctx context.Context, sources []Source) ([]metric.Metric, []LoadResult, error) {
	defer metrics.Timer(metrics.MetricLoad)()

	results := make([]LoadResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallel)

	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = LoadResult{Source: src, Err: err}
				return nil
			}
			ms, err := LoadSource(gctx, src)
			results[i] = LoadResult{Source: src, Metrics: ms, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, results, err
	}
	if err := ctx.Err(); err != nil {
		return nil, results, err
	}

	var batches [][]metric.Metric
	for _, r := range results {
		if r.Err != nil {
			debug.Error("data source %s: %v", r.Source.Path, r.Err)
			continue
		}
		batches = append(batches, r.Metrics)
	}
	return Merge(batches...), results, nil
}

// Merge combines metric batches. Series with the same name are joined and
// their points sorted by time; for tables the last batch wins. The result
// keeps first-appearance order.
func Merge(batches ...[]metric.Metric) []metric.Metric {
	var order []string
	merged := make(map[string]metric.Metric)
	for _, batch := range batches {
		for _, m := range batch {
			id := m.ID()
			prev, seen := merged[id]
			if !seen {
				order = append(order, id)
				merged[id] = m
				continue
			}
			a, okA := prev.(*metric.Series)
			b, okB := m.(*metric.Series)
			if !okA || !okB {
				merged[id] = m
				continue
			}
			points := make([]metric.Point, 0, len(a.Points)+len(b.Points))
			points = append(points, a.Points...)
			points = append(points, b.Points...)
			sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
			merged[id] = metric.NewSeries(a.Name(), points...)
		}
	}
	out := make([]metric.Metric, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}
