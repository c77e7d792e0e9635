package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/streamest/internal/sink"
)

func writeResults(t *testing.T, dir string, rows []sink.ResultRow) {
	t.Helper()
	w, err := sink.NewResultWriter(filepath.Join(dir, "results.parquet"), sink.DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func testRows() []sink.ResultRow {
	return []sink.ResultRow{
		{Key: "a", WindowStart: 0, WindowEnd: 10000, RecordCount: 100, Metric: "q0.5", Estimate: 100},
		{Key: "a", WindowStart: 500, WindowEnd: 10500, RecordCount: 110, Metric: "q0.5", Estimate: 140},
		{Key: "a", WindowStart: 1000, WindowEnd: 11000, RecordCount: 90, Metric: "q0.5", Estimate: 120},
		{Key: "a", WindowStart: 0, WindowEnd: 10000, RecordCount: 100, Metric: "q0.99", Estimate: 990},
		{Key: "b", WindowStart: 0, WindowEnd: 10000, RecordCount: 40, Metric: "q0.5", Estimate: 7},
	}
}

func newService(t *testing.T, dir string) *Service {
	t.Helper()
	s, err := New(dir, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResultStats(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, testRows())
	s := newService(t, dir)

	stats, err := s.ResultStats(context.Background(), "q0.5", 0, 20000)
	if err != nil {
		t.Fatalf("ResultStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 keys, got %d: %+v", len(stats), stats)
	}

	a := stats[0]
	if a.Key != "a" || a.Windows != 3 {
		t.Fatalf("key a stats = %+v, want 3 windows", a)
	}
	if a.MinEstimate != 100 || a.MeanEstimate != 120 || a.MaxEstimate != 140 {
		t.Fatalf("key a estimates = %+v, want min 100 mean 120 max 140", a)
	}

	b := stats[1]
	if b.Key != "b" || b.Windows != 1 || b.MinEstimate != 7 || b.MaxEstimate != 7 {
		t.Fatalf("key b stats = %+v", b)
	}
}

func TestResultStatsTimeRange(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, testRows())
	s := newService(t, dir)

	// Only windows fully inside [0, 10000] qualify.
	stats, err := s.ResultStats(context.Background(), "q0.5", 0, 10000)
	if err != nil {
		t.Fatalf("ResultStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 keys, got %d: %+v", len(stats), stats)
	}
	if stats[0].Windows != 1 {
		t.Fatalf("key a should have 1 window in range, got %d", stats[0].Windows)
	}
}

func TestResultStatsEmptyDir(t *testing.T) {
	s := newService(t, t.TempDir())

	stats, err := s.ResultStats(context.Background(), "q0.5", 0, 10000)
	if err != nil {
		t.Fatalf("ResultStats on empty dir: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected no stats, got %+v", stats)
	}
}

func TestWindowsForKey(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, testRows())
	s := newService(t, dir)

	rows, err := s.WindowsForKey(context.Background(), "a", "q0.5", 0)
	if err != nil {
		t.Fatalf("WindowsForKey: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 windows, got %d: %+v", len(rows), rows)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].WindowStart < rows[i-1].WindowStart {
			t.Fatalf("windows out of order: %+v", rows)
		}
	}
	if rows[0].Estimate != 100 || rows[0].RecordCount != 100 {
		t.Fatalf("first window = %+v", rows[0])
	}

	limited, err := s.WindowsForKey(context.Background(), "a", "q0.5", 1)
	if err != nil {
		t.Fatalf("WindowsForKey: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit 1 returned %d rows", len(limited))
	}
}

func TestExecuteSQL(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, testRows())
	s := newService(t, dir)

	rows, err := s.ExecuteSQL(context.Background(),
		"SELECT count(*) AS n FROM read_parquet('"+s.ResultsGlob()+"')")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0]["n"]; !ok {
		t.Fatalf("missing column n in %+v", rows[0])
	}
}

func TestServiceStats(t *testing.T) {
	dir := t.TempDir()
	writeResults(t, dir, testRows())
	s := newService(t, dir)

	if _, err := s.ResultStats(context.Background(), "q0.5", 0, 20000); err != nil {
		t.Fatalf("ResultStats: %v", err)
	}
	if _, err := s.WindowsForKey(context.Background(), "b", "q0.5", 0); err != nil {
		t.Fatalf("WindowsForKey: %v", err)
	}

	st := s.Stats()
	if st.QueriesExecuted != 2 {
		t.Fatalf("queries executed = %d, want 2", st.QueriesExecuted)
	}
	if st.RowsReturned != 3 {
		t.Fatalf("rows returned = %d, want 3", st.RowsReturned)
	}
}
