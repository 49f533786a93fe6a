package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metric"
)

// SQLiteReader provides read access to a samples database:
//
//	CREATE TABLE samples (metric TEXT NOT NULL, ts, value)
//
// ts is epoch milliseconds or a date string; value is a number, text or
// NULL.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// NewSQLiteReader opens a SQLite database for reading
func NewSQLiteReader(source Source) (*SQLiteReader, error) {
	if source.Type != SourceTypeSQLite {
		return nil, fmt.Errorf("source is not SQLite: %s", source.Type)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			debug.Log("sqlite %s: %s: %v", source.Path, pragma, err)
		}
	}

	return &SQLiteReader{db: db, path: source.Path}, nil
}

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadMetrics reads every sample, grouped into series ordered by metric
// name and timestamp.
func (r *SQLiteReader) LoadMetrics(ctx context.Context) ([]metric.Metric, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT metric, ts, value FROM samples ORDER BY metric, ts`)
	if err != nil {
		return nil, fmt.Errorf("query samples in %s: %w", r.path, err)
	}
	defer rows.Close()

	var (
		out    []metric.Metric
		name   string
		points []metric.Point
	)
	flush := func() {
		if name != "" {
			out = append(out, metric.NewSeries(name, points...))
		}
	}
	for rows.Next() {
		var m string
		var ts, value any
		if err := rows.Scan(&m, &ts, &value); err != nil {
			return nil, fmt.Errorf("scan sample in %s: %w", r.path, err)
		}
		if m != name {
			flush()
			name, points = m, nil
		}
		if b, ok := ts.([]byte); ok {
			ts = string(b)
		}
		points = append(points, metric.Point{Time: metric.ParseTime(ts), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read samples in %s: %w", r.path, err)
	}
	flush()
	return out, nil
}

// CountSamples returns the number of rows in the samples table.
func (r *SQLiteReader) CountSamples(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
