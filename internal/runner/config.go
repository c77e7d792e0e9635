package runner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/streamest/config"
	"github.com/xtxerr/streamest/internal/sink"
)

// Config represents a complete experiment configuration.
type Config struct {
	// Aggregate selects the window function: quantile, ddsketch,
	// cardinality, or stats.
	Aggregate string `yaml:"aggregate"`

	// Window shapes the event-time windows records fold into.
	Window WindowConfig `yaml:"window"`

	// Quantile tunes the targeted-quantile summary aggregate.
	Quantile QuantileConfig `yaml:"quantile"`

	// Cardinality tunes the distinct-count aggregate.
	Cardinality CardinalityConfig `yaml:"cardinality"`

	// DDSketch tunes the relative-accuracy quantile aggregate.
	DDSketch DDSketchConfig `yaml:"ddsketch"`

	// Source selects the record stream.
	Source SourceConfig `yaml:"source"`

	// Sink configures the Parquet result output.
	Sink SinkConfig `yaml:"sink"`

	// Runner controls execution mode and measurement.
	Runner RunnerConfig `yaml:"runner"`

	// Query configures the result query service.
	Query QueryConfig `yaml:"query"`
}

// WindowConfig shapes the event-time windows.
type WindowConfig struct {
	// SizeMs is the window length in event-time milliseconds.
	SizeMs int64 `yaml:"size_ms"`

	// SlideMs is the interval between window starts. Equal to SizeMs
	// the windows tumble, smaller values make them slide.
	SlideMs int64 `yaml:"slide_ms"`
}

// QuantileConfig tunes the targeted-quantile summary aggregate.
type QuantileConfig struct {
	// Targets lists the tracked fractions and their rank errors.
	Targets []TargetConfig `yaml:"targets"`

	// Error is the rank error applied to targets that do not name one.
	Error float64 `yaml:"error"`

	// Fractions are the quantiles reported per window. Defaults to the
	// target fractions.
	Fractions []float64 `yaml:"fractions"`

	// BatchSize is the summary's pending-insertion buffer capacity.
	BatchSize int `yaml:"batch_size"`

	// RankPolicy is the error-bound size basis: summary-size or
	// stream-count.
	RankPolicy string `yaml:"rank_policy"`
}

// TargetConfig is one tracked quantile fraction.
type TargetConfig struct {
	// Quantile is the tracked fraction in (0, 1).
	Quantile float64 `yaml:"quantile"`

	// Error is the permitted rank error. Zero takes the section-wide
	// default.
	Error float64 `yaml:"error"`
}

// CardinalityConfig tunes the distinct-count aggregate.
type CardinalityConfig struct {
	// Sketch is the estimator: linear, kmv, or tipping.
	Sketch string `yaml:"sketch"`

	// Bits is the linear-counting bitmap size in bits.
	Bits int `yaml:"bits"`

	// K is the number of minimum hashes a KMV sketch retains.
	K int `yaml:"k"`

	// TippingThreshold is the exact-set size at which a tipping sketch
	// switches to approximate counting.
	TippingThreshold int `yaml:"tipping_threshold"`

	// Inner is the sketch a tipping sketch builds after the switch:
	// linear or kmv.
	Inner string `yaml:"inner"`
}

// DDSketchConfig tunes the relative-accuracy quantile aggregate.
type DDSketchConfig struct {
	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`

	// Fractions are the quantiles reported per window.
	Fractions []float64 `yaml:"fractions"`
}

// SourceConfig selects the record stream.
type SourceConfig struct {
	// Kind is the stream origin: csv or synthetic.
	Kind string `yaml:"kind"`

	// Path is the CSV file to read (csv kind).
	Path string `yaml:"path"`

	// Count is the number of generated records (synthetic kind).
	Count int64 `yaml:"count"`

	// Keys is the number of distinct keys generated records cycle over.
	Keys int `yaml:"keys"`

	// Seed fixes the generator so runs are reproducible.
	Seed int64 `yaml:"seed"`

	// Distribution is the value distribution, e.g. "uniform(0,1000)",
	// "normal(500,100)", or "zipf(1.2,1,100000)".
	Distribution string `yaml:"distribution"`

	// StartMs is the event time of the first generated record.
	StartMs int64 `yaml:"start_ms"`

	// RecordsPerSecond spaces generated event timestamps. Rates above
	// 1000 collapse to one record per millisecond.
	RecordsPerSecond int `yaml:"records_per_second"`
}

// SinkConfig configures the Parquet result output.
type SinkConfig struct {
	// Dir is where result and measurement files are written.
	Dir string `yaml:"dir"`

	// Compression is the Parquet codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// RowGroupSize is the target number of rows per row group.
	RowGroupSize int `yaml:"row_group_size"`

	// PageSize is the target page size in bytes.
	PageSize int `yaml:"page_size"`
}

// RunnerConfig controls how the experiment executes.
type RunnerConfig struct {
	// Mode is "fold" for a single operator driven by the event-time
	// watermark, or "sharded" for parallel workers merged at the end.
	Mode string `yaml:"mode"`

	// Shards is the worker count for sharded mode.
	Shards int `yaml:"shards"`

	// Measurement is "latency", "throughput", or "none".
	Measurement string `yaml:"measurement"`

	// LatencySampleRate keeps one fold-latency sample per this many
	// records when latency measurement is enabled.
	LatencySampleRate int `yaml:"latency_sample_rate"`
}

// QueryConfig configures the result query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`
}

// Load loads an experiment configuration from a YAML file. Fields the
// file does not set keep their defaults. The caller applies any flag
// overrides and then Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	sinkDefaults := sink.DefaultOptions()
	return &Config{
		Aggregate: "quantile",
		Window: WindowConfig{
			SizeMs:  config.DefaultWindowSizeMs,
			SlideMs: config.DefaultWindowSlideMs,
		},
		Quantile: QuantileConfig{
			Targets: []TargetConfig{
				{Quantile: 0.5, Error: 0.01},
				{Quantile: 0.9, Error: 0.01},
				{Quantile: 0.99, Error: 0.001},
			},
			Error:      config.DefaultQuantileError,
			BatchSize:  config.DefaultBatchSize,
			RankPolicy: "summary-size",
		},
		Cardinality: CardinalityConfig{
			Sketch:           "tipping",
			Bits:             config.DefaultLinearCountingBits,
			K:                config.DefaultKMinValues,
			TippingThreshold: config.DefaultTippingThreshold,
			Inner:            "linear",
		},
		DDSketch: DDSketchConfig{
			Accuracy:  config.DefaultDDSketchAccuracy,
			Fractions: []float64{0.5, 0.9, 0.99},
		},
		Source: SourceConfig{
			Kind:             "synthetic",
			Count:            config.DefaultSyntheticCount,
			Keys:             config.DefaultSyntheticKeys,
			Seed:             1,
			Distribution:     "uniform(0,1000)",
			RecordsPerSecond: config.DefaultRecordsPerSecond,
		},
		Sink: SinkConfig{
			Dir:          config.DefaultResultsDir,
			Compression:  "snappy",
			RowGroupSize: sinkDefaults.RowGroupSize,
			PageSize:     sinkDefaults.PageSize,
		},
		Runner: RunnerConfig{
			Mode:              "fold",
			Shards:            config.DefaultShards,
			Measurement:       "none",
			LatencySampleRate: config.DefaultLatencySampleRate,
		},
		Query: QueryConfig{
			MemoryLimit: "2GB",
		},
	}
}

// SinkOptions converts the sink section to Parquet writer options.
func (c *Config) SinkOptions() sink.Options {
	return sink.Options{
		Compression:  sink.ParseCompressionType(c.Sink.Compression),
		RowGroupSize: c.Sink.RowGroupSize,
		PageSize:     c.Sink.PageSize,
	}
}
