// streamest runs windowed aggregation experiments over record streams.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/xtxerr/streamest/internal/logging"
	"github.com/xtxerr/streamest/internal/query"
	"github.com/xtxerr/streamest/internal/runner"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "experiment.yaml", "experiment config file path")
	aggregate := flag.String("aggregate", "", "aggregate kind: quantile, ddsketch, cardinality, stats (overrides config)")
	mode := flag.String("mode", "", "execution mode: fold or sharded (overrides config)")
	shards := flag.Int("shards", 0, "worker count for sharded mode (overrides config)")
	windowSize := flag.Int64("window-size-ms", 0, "window size in ms (overrides config)")
	windowSlide := flag.Int64("window-slide-ms", 0, "window slide in ms (overrides config)")
	csvPath := flag.String("csv", "", "read records from this CSV file (overrides config)")
	count := flag.Int64("count", 0, "synthetic record count (overrides config)")
	dist := flag.String("distribution", "", "synthetic value distribution (overrides config)")
	seed := flag.Int64("seed", 0, "synthetic generator seed (overrides config when nonzero)")
	out := flag.String("out", "", "results directory (overrides config)")
	compression := flag.String("compression", "", "parquet compression (overrides config)")
	measurement := flag.String("measurement", "", "measurement mode: latency, throughput, none (overrides config)")
	sampleRate := flag.Int("latency-sample-rate", 0, "records per latency sample (overrides config)")
	summarize := flag.String("summarize", "", "print per-key stats for this metric over existing results and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("streamest", Version)
		return
	}

	logging.Init(parseLevel(*logLevel), *logFormat == "json")
	log := logging.Component("main")
	log.Info("streamest starting", "version", Version)

	// Load config
	cfg, err := runner.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("no config file found, using defaults", "path", *cfgPath)
			cfg = runner.DefaultConfig()
		} else {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *aggregate != "" {
		cfg.Aggregate = *aggregate
	}
	if *mode != "" {
		cfg.Runner.Mode = *mode
	}
	if *shards > 0 {
		cfg.Runner.Shards = *shards
	}
	if *measurement != "" {
		cfg.Runner.Measurement = *measurement
	}
	if *sampleRate > 0 {
		cfg.Runner.LatencySampleRate = *sampleRate
	}
	if *windowSize > 0 {
		cfg.Window.SizeMs = *windowSize
	}
	if *windowSlide > 0 {
		cfg.Window.SlideMs = *windowSlide
	}
	if *csvPath != "" {
		cfg.Source.Kind = "csv"
		cfg.Source.Path = *csvPath
	}
	if *count > 0 {
		cfg.Source.Count = *count
	}
	if *dist != "" {
		cfg.Source.Distribution = *dist
	}
	if *seed != 0 {
		cfg.Source.Seed = *seed
	}
	if *out != "" {
		cfg.Sink.Dir = *out
	}
	if *compression != "" {
		cfg.Sink.Compression = *compression
	}

	// Summarize existing results instead of running an experiment
	if *summarize != "" {
		if err := summarizeResults(cfg, *summarize); err != nil {
			log.Error("summarize", "error", err)
			os.Exit(1)
		}
		return
	}

	// First signal finishes the run early, second one forces exit.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("interrupt received, finishing up")
		cancel()
		<-sig
		log.Info("second interrupt, exiting")
		os.Exit(1)
	}()

	rep, err := runner.Run(ctx, cfg)
	if err != nil {
		log.Error("run", "error", err)
		os.Exit(1)
	}

	log.Info("results written",
		"path", rep.ResultsPath,
		"windows", rep.Windows,
		"rows", rep.Rows,
		"elapsed", rep.Elapsed,
	)
	if rep.LatencyPath != "" {
		log.Info("latencies written", "path", rep.LatencyPath)
	}
}

// summarizeResults prints per-key window statistics for one metric
// over every results file in the sink directory.
func summarizeResults(cfg *runner.Config, metric string) error {
	svc, err := query.New(cfg.Sink.Dir, cfg.Query.MemoryLimit)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.ResultStats(context.Background(), metric, 0, math.MaxInt64)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Printf("no results for metric %q under %s\n", metric, cfg.Sink.Dir)
		return nil
	}

	fmt.Printf("%-24s %10s %14s %14s %14s\n", "KEY", "WINDOWS", "MIN", "MEAN", "MAX")
	for _, s := range stats {
		fmt.Printf("%-24s %10d %14.3f %14.3f %14.3f\n",
			s.Key, s.Windows, s.MinEstimate, s.MeanEstimate, s.MaxEstimate)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
