// Package runner executes windowed aggregation experiments end to end.
// It builds the configured source, aggregate, and window operator,
// drives records through fold or sharded execution, and writes closed
// windows (plus optional latency samples) to Parquet.
package runner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/streamest/internal/aggregate"
	"github.com/xtxerr/streamest/internal/cardinality"
	"github.com/xtxerr/streamest/internal/logging"
	"github.com/xtxerr/streamest/internal/quantile"
	"github.com/xtxerr/streamest/internal/sink"
	"github.com/xtxerr/streamest/internal/source"
	"github.com/xtxerr/streamest/internal/stream"
	"github.com/xtxerr/streamest/internal/window"
)

const (
	// shardQueueSize buffers records between the dispatcher and each
	// worker so the reader is not lockstepped to the slowest shard.
	shardQueueSize = 256

	// latencyFlushSize batches sampled latencies before each Parquet
	// write.
	latencyFlushSize = 1024
)

// Report summarizes a completed run.
type Report struct {
	// Records is the number of records read from the source.
	Records int64

	// Invalid is the number of records the aggregate rejected.
	Invalid int64

	// Late is the number of records dropped behind the watermark.
	Late int64

	// Windows is the number of per-key window results emitted.
	Windows int64

	// Rows is the number of Parquet result rows written.
	Rows int64

	// Elapsed is the wall time of the run.
	Elapsed time.Duration

	// RecordsPerSec is Records divided by Elapsed.
	RecordsPerSec float64

	// ResultsPath is the written results file.
	ResultsPath string

	// LatencyPath is the written latency file, when latency
	// measurement was on.
	LatencyPath string

	// Interrupted reports whether the run stopped on context
	// cancellation. Windows still open at that point are not emitted.
	Interrupted bool
}

// Run validates the configuration, executes the experiment, and writes
// window results under the sink directory.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	switch cfg.Aggregate {
	case "quantile":
		fn, err := buildQuantiles(cfg)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		return run[*quantile.Summary, map[float64]int64](ctx, cfg, fn, flattenQuantiles(fn.Fractions()))
	case "ddsketch":
		fn, err := aggregate.NewDDSketch(cfg.DDSketch.Accuracy, cfg.DDSketch.Fractions)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		return run[*ddsketch.DDSketch, map[float64]float64](ctx, cfg, fn, flattenDDSketch(fn.Fractions()))
	case "cardinality":
		factory, err := buildSketchFactory(cfg)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		fn, err := aggregate.NewCardinality(factory)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		return run[cardinality.Sketch, int64](ctx, cfg, fn, flattenCardinality)
	case "stats":
		return run[*aggregate.Stats, aggregate.StatsResult](ctx, cfg, aggregate.StatsFunc{}, flattenStats)
	default:
		return nil, fmt.Errorf("runner: unknown aggregate %q", cfg.Aggregate)
	}
}

// run wires the shared plumbing around both execution modes: source,
// writers, timing, and the completion log line.
func run[P, R any](ctx context.Context, cfg *Config, fn aggregate.Func[P, R], flatten func(window.Result[R]) []sink.ResultRow) (*Report, error) {
	log := logging.Component("runner")

	assigner, err := window.NewAssigner(cfg.Window.SizeMs, cfg.Window.SlideMs)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	src, err := buildSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	defer func() {
		if closer, ok := src.(io.Closer); ok {
			closer.Close()
		}
	}()

	stamp := time.Now().UTC().Format("20060102-150405.000")
	resultsPath := filepath.Join(cfg.Sink.Dir, "results-"+stamp+".parquet")
	results, err := sink.NewResultWriter(resultsPath, cfg.SinkOptions())
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	var latencies *sink.LatencyWriter
	var latencyPath string
	if cfg.Runner.Measurement == "latency" {
		latencyPath = filepath.Join(cfg.Sink.Dir, "latency-"+stamp+".parquet")
		latencies, err = sink.NewLatencyWriter(latencyPath, cfg.SinkOptions())
		if err != nil {
			results.Close()
			return nil, fmt.Errorf("runner: %w", err)
		}
	}

	log.Info("experiment started",
		"aggregate", cfg.Aggregate,
		"mode", cfg.Runner.Mode,
		"source", cfg.Source.Kind,
		"window_size_ms", cfg.Window.SizeMs,
		"window_slide_ms", cfg.Window.SlideMs,
	)

	start := time.Now()
	var rep *Report
	switch cfg.Runner.Mode {
	case "sharded":
		rep, err = runSharded(ctx, cfg, fn, flatten, assigner, src, results, latencies)
	default:
		rep, err = runFold(ctx, cfg, fn, flatten, assigner, src, results, latencies)
	}
	if err != nil {
		results.Close()
		if latencies != nil {
			latencies.Close()
		}
		return nil, err
	}

	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("runner: close results: %w", err)
	}
	if latencies != nil {
		if err := latencies.Close(); err != nil {
			return nil, fmt.Errorf("runner: close latencies: %w", err)
		}
	}

	rep.Elapsed = time.Since(start)
	if rep.Elapsed > 0 {
		rep.RecordsPerSec = float64(rep.Records) / rep.Elapsed.Seconds()
	}
	rep.Rows = results.RowCount()
	rep.ResultsPath = resultsPath
	rep.LatencyPath = latencyPath

	if cfg.Runner.Measurement == "throughput" {
		log.Info("throughput",
			"records", rep.Records,
			"elapsed", rep.Elapsed,
			"records_per_sec", rep.RecordsPerSec,
		)
	}
	log.Info("experiment complete",
		"records", rep.Records,
		"invalid", rep.Invalid,
		"late", rep.Late,
		"windows", rep.Windows,
		"rows", rep.Rows,
		"interrupted", rep.Interrupted,
	)
	return rep, nil
}

// runFold drives every record through one operator. The watermark is
// the highest event time seen, advanced only when it crosses a window
// boundary so the emit scan is not paid per record.
func runFold[P, R any](ctx context.Context, cfg *Config, fn aggregate.Func[P, R], flatten func(window.Result[R]) []sink.ResultRow, assigner *window.Assigner, src source.Source, results *sink.ResultWriter, latencies *sink.LatencyWriter) (*Report, error) {
	op, err := window.NewOperator[P, R](fn, assigner)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	rep := &Report{}
	sampler := newLatencySampler(latencies, cfg.Runner.LatencySampleRate)
	maxTs := int64(math.MinInt64)
	lastBoundary := int64(math.MinInt64)

	for {
		select {
		case <-ctx.Done():
			rep.Interrupted = true
		default:
		}
		if rep.Interrupted {
			break
		}

		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		rep.Records++

		if perr := sampler.process(op.Process, rep.Records, rec); perr != nil {
			if errors.Is(perr, stream.ErrInvalidValue) {
				rep.Invalid++
				continue
			}
			return nil, perr
		}

		if rec.TimestampMs > maxTs {
			maxTs = rec.TimestampMs
			if boundary := assigner.SlideStart(maxTs); boundary > lastBoundary {
				lastBoundary = boundary
				emitted, err := op.Advance(maxTs)
				if err != nil {
					return nil, err
				}
				if err := writeResults(results, emitted, flatten, rep); err != nil {
					return nil, err
				}
			}
		}
	}

	if !rep.Interrupted {
		emitted, err := op.Close()
		if err != nil {
			return nil, err
		}
		if err := writeResults(results, emitted, flatten, rep); err != nil {
			return nil, err
		}
	}

	rep.Late = op.Late()
	if err := sampler.flush(); err != nil {
		return nil, err
	}
	return rep, nil
}

// shardResult is one worker's contribution to a sharded run.
type shardResult[P any] struct {
	parts   []window.Partial[P]
	invalid int64
}

// windowKey identifies one per-key window across workers.
type windowKey struct {
	key   string
	start int64
}

// runSharded fans records out round-robin to workers that each own an
// operator, then merges per-window partials across workers in worker
// order and lowers each window once. No watermark advances mid-run, so
// nothing is dropped as late; results land when the stream ends.
func runSharded[P, R any](ctx context.Context, cfg *Config, fn aggregate.Func[P, R], flatten func(window.Result[R]) []sink.ResultRow, assigner *window.Assigner, src source.Source, results *sink.ResultWriter, latencies *sink.LatencyWriter) (*Report, error) {
	shards := cfg.Runner.Shards
	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan stream.Record, shards)
	outs := make([]shardResult[P], shards)
	for i := range chans {
		chans[i] = make(chan stream.Record, shardQueueSize)
	}

	for i := 0; i < shards; i++ {
		op, err := window.NewOperator[P, R](fn, assigner)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		sampler := newLatencySampler(latencies, cfg.Runner.LatencySampleRate)
		ch := chans[i]
		out := &outs[i]
		worker := int64(i)
		g.Go(func() error {
			var local int64
			for rec := range ch {
				// Round-robin dispatch makes this the global
				// record index.
				seq := worker + local*int64(shards) + 1
				local++
				if perr := sampler.process(op.Process, seq, rec); perr != nil {
					if errors.Is(perr, stream.ErrInvalidValue) {
						out.invalid++
						continue
					}
					return perr
				}
			}
			parts, err := op.Drain()
			if err != nil {
				return err
			}
			out.parts = parts
			return sampler.flush()
		})
	}

	var read int64
	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		next := 0
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rec, err := src.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("runner: %w", err)
			}
			select {
			case chans[next] <- rec:
				read++
				next = (next + 1) % shards
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	interrupted := false
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		interrupted = true
	}

	rep := &Report{Records: read, Interrupted: interrupted}

	// Merge worker partials per window, in worker order. Each partial
	// is owned by exactly one finished worker, so Combine may consume
	// both operands without cloning.
	acc := make(map[windowKey]*window.Partial[P])
	var order []windowKey
	for w := range outs {
		rep.Invalid += outs[w].invalid
		for j := range outs[w].parts {
			p := &outs[w].parts[j]
			k := windowKey{p.Key, p.StartMs}
			prev, ok := acc[k]
			if !ok {
				acc[k] = p
				order = append(order, k)
				continue
			}
			combined, err := fn.Combine(prev.State, p.State)
			if err != nil {
				return nil, fmt.Errorf("runner: combine [%d,%d)ms key %q: %w", p.StartMs, p.EndMs, p.Key, err)
			}
			prev.State = combined
			prev.Count += p.Count
		}
	}

	slices.SortFunc(order, func(a, b windowKey) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.start, b.start)
	})

	for _, k := range order {
		p := acc[k]
		value, err := fn.Lower(p.State)
		if err != nil {
			return nil, fmt.Errorf("runner: lower [%d,%d)ms key %q: %w", p.StartMs, p.EndMs, p.Key, err)
		}
		res := window.Result[R]{Key: p.Key, StartMs: p.StartMs, EndMs: p.EndMs, Count: p.Count, Value: value}
		if err := results.Write(flatten(res)); err != nil {
			return nil, fmt.Errorf("runner: write results: %w", err)
		}
		rep.Windows++
	}
	return rep, nil
}

// writeResults flattens emitted windows into result rows.
func writeResults[R any](w *sink.ResultWriter, emitted []window.Result[R], flatten func(window.Result[R]) []sink.ResultRow, rep *Report) error {
	for _, res := range emitted {
		if err := w.Write(flatten(res)); err != nil {
			return fmt.Errorf("runner: write results: %w", err)
		}
		rep.Windows++
	}
	return nil
}

// latencySampler times one fold in every rate records and batches the
// samples for the latency writer. A nil sampler (measurement off)
// folds straight through.
type latencySampler struct {
	w    *sink.LatencyWriter
	rate int64
	rows []sink.LatencyRow
}

func newLatencySampler(w *sink.LatencyWriter, rate int) *latencySampler {
	if w == nil {
		return nil
	}
	return &latencySampler{w: w, rate: int64(rate)}
}

// process folds rec, timing the call when the sample falls due. seq is
// the 1-based global record index.
func (s *latencySampler) process(fold func(stream.Record) error, seq int64, rec stream.Record) error {
	if s == nil || seq%s.rate != 0 {
		return fold(rec)
	}
	t0 := time.Now()
	err := fold(rec)
	elapsed := time.Since(t0)
	if err != nil {
		return err
	}
	s.rows = append(s.rows, sink.LatencyRow{
		Seq:         seq,
		TimestampMs: rec.TimestampMs,
		LatencyNs:   elapsed.Nanoseconds(),
	})
	if len(s.rows) >= latencyFlushSize {
		return s.flushRows()
	}
	return nil
}

func (s *latencySampler) flush() error {
	if s == nil {
		return nil
	}
	return s.flushRows()
}

func (s *latencySampler) flushRows() error {
	if len(s.rows) == 0 {
		return nil
	}
	if err := s.w.Write(s.rows); err != nil {
		return fmt.Errorf("runner: write latencies: %w", err)
	}
	s.rows = s.rows[:0]
	return nil
}
