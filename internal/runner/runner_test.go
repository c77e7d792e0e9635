package runner

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xtxerr/streamest/internal/sink"
	"github.com/xtxerr/streamest/internal/testutil"
)

// statsConfig builds a small deterministic experiment: three keys,
// six tumbling windows, integer values so sums are exact in any
// combine order.
func statsConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Aggregate = "stats"
	cfg.Window.SizeMs = 1000
	cfg.Window.SlideMs = 1000
	cfg.Source.Kind = "synthetic"
	cfg.Source.Count = 6000
	cfg.Source.Keys = 3
	cfg.Source.Seed = 11
	cfg.Source.Distribution = "zipf(1.2,1,1000)"
	cfg.Source.RecordsPerSecond = 1000
	cfg.Sink.Dir = t.TempDir()
	return cfg
}

func writeCSVFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.csv")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func readResults(t *testing.T, path string) []sink.ResultRow {
	t.Helper()
	r, err := sink.NewResultReader(path)
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	defer r.Close()
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	slices.SortFunc(rows, func(a, b sink.ResultRow) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		if c := cmp.Compare(a.WindowStart, b.WindowStart); c != 0 {
			return c
		}
		return cmp.Compare(a.Metric, b.Metric)
	})
	return rows
}

func TestRunFoldStats(t *testing.T) {
	cfg := statsConfig(t)

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.Records != 6000 {
		t.Errorf("expected 6000 records, got %d", rep.Records)
	}
	if rep.Invalid != 0 || rep.Late != 0 {
		t.Errorf("expected clean run, got invalid=%d late=%d", rep.Invalid, rep.Late)
	}
	// 3 keys x 6 tumbling windows, 4 metric rows each.
	if rep.Windows != 18 {
		t.Errorf("expected 18 windows, got %d", rep.Windows)
	}
	if rep.Rows != 72 {
		t.Errorf("expected 72 rows, got %d", rep.Rows)
	}
	if rep.Interrupted {
		t.Error("expected uninterrupted run")
	}
	if rep.RecordsPerSec <= 0 {
		t.Errorf("expected positive throughput, got %v", rep.RecordsPerSec)
	}

	rows := readResults(t, rep.ResultsPath)
	if len(rows) != 72 {
		t.Fatalf("expected 72 result rows, got %d", len(rows))
	}

	var total int64
	for _, row := range rows {
		if row.WindowEnd != row.WindowStart+1000 {
			t.Errorf("window [%d,%d) is not 1000ms wide", row.WindowStart, row.WindowEnd)
		}
		if row.RecordCount <= 0 {
			t.Errorf("window [%d,%d) key %s has no records", row.WindowStart, row.WindowEnd, row.Key)
		}
		if row.Metric == "sum" {
			total += row.RecordCount
		}
	}
	if total != 6000 {
		t.Errorf("window record counts sum to %d, want 6000", total)
	}
}

func TestRunShardedMatchesFold(t *testing.T) {
	foldCfg := statsConfig(t)
	foldRep, err := Run(context.Background(), foldCfg)
	if err != nil {
		t.Fatalf("fold run: %v", err)
	}

	shardedCfg := statsConfig(t)
	shardedCfg.Runner.Mode = "sharded"
	shardedCfg.Runner.Shards = 3
	shardedRep, err := Run(context.Background(), shardedCfg)
	if err != nil {
		t.Fatalf("sharded run: %v", err)
	}

	if shardedRep.Records != foldRep.Records {
		t.Errorf("record counts differ: fold=%d sharded=%d", foldRep.Records, shardedRep.Records)
	}
	if shardedRep.Windows != foldRep.Windows {
		t.Errorf("window counts differ: fold=%d sharded=%d", foldRep.Windows, shardedRep.Windows)
	}

	foldRows := readResults(t, foldRep.ResultsPath)
	shardedRows := readResults(t, shardedRep.ResultsPath)
	if len(foldRows) != len(shardedRows) {
		t.Fatalf("row counts differ: fold=%d sharded=%d", len(foldRows), len(shardedRows))
	}

	// Integer values make every stat exact, so the partition must not
	// change a single row.
	for i := range foldRows {
		if foldRows[i] != shardedRows[i] {
			t.Errorf("row %d differs:\nfold:    %+v\nsharded: %+v", i, foldRows[i], shardedRows[i])
		}
	}
}

func TestRunQuantileMedian(t *testing.T) {
	var lines strings.Builder
	lines.WriteString("timestamp_ms,key,value\n")
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&lines, "%d,sensor,%d\n", i, i+1)
	}
	path := writeCSVFile(t, lines.String())

	cfg := DefaultConfig()
	cfg.Aggregate = "quantile"
	cfg.Window.SizeMs = 1000
	cfg.Window.SlideMs = 1000
	cfg.Source.Kind = "csv"
	cfg.Source.Path = path
	cfg.Sink.Dir = t.TempDir()

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Records != 1000 {
		t.Errorf("expected 1000 records, got %d", rep.Records)
	}

	rows := readResults(t, rep.ResultsPath)
	var median *sink.ResultRow
	for i := range rows {
		if rows[i].Metric == "q0.5" {
			median = &rows[i]
		}
	}
	if median == nil {
		t.Fatalf("no q0.5 row in %d rows", len(rows))
	}
	if median.RecordCount != 1000 {
		t.Errorf("expected 1000 records in window, got %d", median.RecordCount)
	}
	if median.Estimate < 490 || median.Estimate > 510 {
		t.Errorf("median %v outside [490,510]", median.Estimate)
	}
}

func TestRunDDSketchQuantiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregate = "ddsketch"
	cfg.Window.SizeMs = 10000
	cfg.Window.SlideMs = 10000
	cfg.Source.Kind = "synthetic"
	cfg.Source.Count = 5000
	cfg.Source.Keys = 1
	cfg.Source.Seed = 3
	cfg.Source.Distribution = "uniform(1,1000)"
	cfg.Sink.Dir = t.TempDir()

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := readResults(t, rep.ResultsPath)
	if len(rows) != 3 {
		t.Fatalf("expected 3 fraction rows, got %d", len(rows))
	}
	var median float64
	for _, row := range rows {
		if row.Metric == "q0.5" {
			median = row.Estimate
		}
	}
	if median < 450 || median > 550 {
		t.Errorf("uniform(1,1000) median %v outside [450,550]", median)
	}
}

func TestRunCardinalityDistinct(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregate = "cardinality"
	cfg.Cardinality.Sketch = "kmv"
	cfg.Cardinality.K = 4096
	cfg.Window.SizeMs = 10000
	cfg.Window.SlideMs = 10000
	cfg.Source.Kind = "synthetic"
	cfg.Source.Count = 5000
	cfg.Source.Keys = 1
	cfg.Source.Seed = 5
	cfg.Source.Distribution = "uniform(0,1000)"
	cfg.Sink.Dir = t.TempDir()

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := readResults(t, rep.ResultsPath)
	if len(rows) != 1 {
		t.Fatalf("expected one distinct row, got %d", len(rows))
	}
	row := rows[0]
	if row.Metric != "distinct" {
		t.Errorf("expected metric distinct, got %s", row.Metric)
	}
	// 5000 draws rounded onto 0..1000: nearly all buckets hit, and a
	// KMV with k=4096 counts that exactly.
	if row.Estimate < 900 || row.Estimate > 1001 {
		t.Errorf("distinct estimate %v outside [900,1001]", row.Estimate)
	}
}

func TestRunLatencySamples(t *testing.T) {
	cfg := statsConfig(t)
	cfg.Source.Count = 2000
	cfg.Runner.Measurement = "latency"
	cfg.Runner.LatencySampleRate = 10

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.LatencyPath == "" {
		t.Fatal("expected a latency file")
	}

	r, err := sink.NewLatencyReader(rep.LatencyPath)
	if err != nil {
		t.Fatalf("open latencies: %v", err)
	}
	defer r.Close()

	samples, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read latencies: %v", err)
	}
	if len(samples) != 200 {
		t.Errorf("expected 200 samples (1 in 10 of 2000), got %d", len(samples))
	}
	for _, s := range samples {
		if s.Seq%10 != 0 {
			t.Errorf("sample seq %d is not a multiple of the rate", s.Seq)
		}
		if s.LatencyNs < 0 {
			t.Errorf("negative latency %d at seq %d", s.LatencyNs, s.Seq)
		}
	}

	if rep.Windows == 0 {
		t.Error("expected windows alongside latency samples")
	}
}

func TestRunLateRecordsDropped(t *testing.T) {
	// The second record is a full window behind the first.
	path := writeCSVFile(t, "timestamp_ms,key,value\n5000,a,10\n100,a,20\n")

	cfg := DefaultConfig()
	cfg.Aggregate = "stats"
	cfg.Window.SizeMs = 1000
	cfg.Window.SlideMs = 1000
	cfg.Source.Kind = "csv"
	cfg.Source.Path = path
	cfg.Sink.Dir = t.TempDir()

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.Records != 2 {
		t.Errorf("expected 2 records read, got %d", rep.Records)
	}
	if rep.Late != 1 {
		t.Errorf("expected 1 late record, got %d", rep.Late)
	}
	if rep.Windows != 1 {
		t.Errorf("expected 1 window, got %d", rep.Windows)
	}

	rows := readResults(t, rep.ResultsPath)
	for _, row := range rows {
		if row.WindowStart != 5000 || row.RecordCount != 1 {
			t.Errorf("unexpected row %+v", row)
		}
	}
}

func TestRunSourceErrorPropagates(t *testing.T) {
	path := writeCSVFile(t, "timestamp_ms,key,value\n1,a,10\n2,a,not-a-number\n")

	cfg := DefaultConfig()
	cfg.Aggregate = "stats"
	cfg.Source.Kind = "csv"
	cfg.Source.Path = path
	cfg.Sink.Dir = t.TempDir()

	if _, err := Run(context.Background(), cfg); err == nil {
		t.Error("expected error for malformed csv value")
	}
}

func TestRunInterrupted(t *testing.T) {
	cfg := statsConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Interrupted {
		t.Error("expected interrupted report")
	}
	if rep.Records != 0 {
		t.Errorf("expected no records read, got %d", rep.Records)
	}

	// The results file is still flushed, just empty.
	if _, err := os.Stat(rep.ResultsPath); err != nil {
		t.Errorf("results file missing: %v", err)
	}
}

func TestRunShardedInterrupted(t *testing.T) {
	cfg := statsConfig(t)
	cfg.Runner.Mode = "sharded"
	cfg.Runner.Shards = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Interrupted {
		t.Error("expected interrupted report")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregate = "histogram"
	cfg.Sink.Dir = t.TempDir()

	if _, err := Run(context.Background(), cfg); err == nil {
		t.Error("expected validation error")
	}
}

func TestRunConcurrentExperiments(t *testing.T) {
	// Runs share nothing but the process, so concurrent experiments
	// must not disturb each other's results.
	g := testutil.NewGroup(t)
	defer g.Wait()

	cfgs := map[string]*Config{
		"fold":     statsConfig(t),
		"sharded":  statsConfig(t),
		"quantile": statsConfig(t),
	}
	cfgs["sharded"].Runner.Mode = "sharded"
	cfgs["sharded"].Runner.Shards = 2
	cfgs["quantile"].Aggregate = "quantile"

	for name, cfg := range cfgs {
		g.Go(func() error {
			rep, err := Run(context.Background(), cfg)
			if err != nil {
				return fmt.Errorf("%s: run: %w", name, err)
			}
			if rep.Records != 6000 {
				return fmt.Errorf("%s: expected 6000 records, got %d", name, rep.Records)
			}
			if rep.Windows != 18 {
				return fmt.Errorf("%s: expected 18 windows, got %d", name, rep.Windows)
			}
			return nil
		})
	}
}
