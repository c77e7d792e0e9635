// Package query answers questions about emitted window results by
// pointing DuckDB at the Parquet files the sink wrote.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/streamest/internal/sink"
)

// Service provides query capabilities over emitted results. It holds
// an in-memory DuckDB handle and the results directory; the Parquet
// files themselves are the only state.
type Service struct {
	mu  sync.Mutex
	db  *sql.DB
	dir string

	stats ServiceStats
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// KeyStats summarizes one key's windows for one metric over a time
// range.
type KeyStats struct {
	Key          string
	Windows      int64
	MinEstimate  float64
	MeanEstimate float64
	MaxEstimate  float64
}

// New creates a query service over the given results directory. An
// empty memoryLimit leaves DuckDB's default in place.
func New(resultsDir, memoryLimit string) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if memoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", memoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{db: db, dir: resultsDir}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ResultStats returns per-key window counts and estimate min/mean/max
// for one metric across all windows inside [startMs, endMs].
func (s *Service) ResultStats(ctx context.Context, metric string, startMs, endMs int64) ([]KeyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, "results*.parquet")
	query := `
		SELECT
			key,
			count(*) AS windows,
			min(estimate), avg(estimate), max(estimate)
		FROM read_parquet($1)
		WHERE metric = $2
		  AND window_start >= $3
		  AND window_end <= $4
		GROUP BY key
		ORDER BY key
	`

	rows, err := s.db.QueryContext(ctx, query, pattern, metric, startMs, endMs)
	if err != nil {
		// No result files yet: report an empty range.
		return nil, nil
	}
	defer rows.Close()

	var results []KeyStats
	for rows.Next() {
		var ks KeyStats
		if err := rows.Scan(&ks.Key, &ks.Windows, &ks.MinEstimate, &ks.MeanEstimate, &ks.MaxEstimate); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, ks)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, nil
}

// WindowsForKey returns one key's result rows for one metric, ordered
// by window start. A positive limit truncates the result.
func (s *Service) WindowsForKey(ctx context.Context, key, metric string, limit int) ([]sink.ResultRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, "results*.parquet")
	query := `
		SELECT key, window_start, window_end, record_count, metric, estimate
		FROM read_parquet($1)
		WHERE key = $2
		  AND metric = $3
		ORDER BY window_start
	`

	rows, err := s.db.QueryContext(ctx, query, pattern, key, metric)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var results []sink.ResultRow
	for rows.Next() {
		var r sink.ResultRow
		if err := rows.Scan(&r.Key, &r.WindowStart, &r.WindowEnd, &r.RecordCount, &r.Metric, &r.Estimate); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, nil
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, rows.Err()
}

// ResultsGlob returns the glob the service queries against. Latency
// sample files live in the same directory under a different schema, so
// the glob selects result files only. Useful in ad-hoc SQL via
// read_parquet.
func (s *Service) ResultsGlob() string {
	return filepath.Join(s.dir, "results*.parquet")
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
