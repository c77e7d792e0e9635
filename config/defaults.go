// Package config provides configuration defaults and utilities
// for the streamest application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via the experiment config file or CLI flags.
package config

// =============================================================================
// Summary Defaults
// =============================================================================

const (
	// DefaultBatchSize is the pending-insertion buffer capacity of a
	// quantile summary. Inserts are batched and compressed at this
	// boundary; larger values amortize compression over more offers.
	// Override via config: quantile.batch_size
	DefaultBatchSize = 500

	// DefaultQuantileError is the per-target error bound used when a
	// target list names fractions without explicit errors.
	// Override via config: quantile.error
	DefaultQuantileError = 0.01
)

// =============================================================================
// Cardinality Sketch Defaults
// =============================================================================

const (
	// DefaultLinearCountingBits is the bitmap size (in bits) of a
	// linear-counting sketch. Must exceed the expected distinct count
	// for the estimate to stay usable.
	// Override via config: cardinality.bits
	DefaultLinearCountingBits = 1 << 16

	// DefaultKMinValues is the number of minimum hashes a KMV sketch
	// retains. Higher values tighten the estimate at linear memory cost.
	// Override via config: cardinality.k
	DefaultKMinValues = 1024

	// DefaultTippingThreshold is the exact-set size at which a
	// count-then-estimate sketch switches to approximate counting.
	// Override via config: cardinality.tipping_threshold
	DefaultTippingThreshold = 1000
)

// =============================================================================
// DDSketch Defaults
// =============================================================================

const (
	// DefaultDDSketchAccuracy is the relative accuracy of the DDSketch
	// quantile aggregate.
	// Override via config: ddsketch.accuracy
	DefaultDDSketchAccuracy = 0.01
)

// =============================================================================
// Window Defaults
// =============================================================================

const (
	// DefaultWindowSizeMs is the default window length in event-time
	// milliseconds.
	// Override via config: window.size_ms
	DefaultWindowSizeMs = 10000

	// DefaultWindowSlideMs is the default slide for sliding windows.
	// Equal size and slide degenerate to tumbling windows.
	// Override via config: window.slide_ms
	DefaultWindowSlideMs = 500
)

// =============================================================================
// Runner Defaults
// =============================================================================

const (
	// DefaultShards is the worker count for sharded-mode experiments.
	// Each shard owns one window operator instance.
	// Override via config: runner.shards
	DefaultShards = 4

	// DefaultLatencySampleRate records one fold latency measurement per
	// this many records when latency measurement is enabled.
	// Override via config: runner.latency_sample_rate
	DefaultLatencySampleRate = 100

	// DefaultResultsDir is where result and measurement files are written.
	// Override via config: sink.dir
	DefaultResultsDir = "./results"
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultSyntheticCount is the record count of a synthetic source
	// when the config does not name one.
	// Override via config: source.count
	DefaultSyntheticCount = 100000

	// DefaultSyntheticKeys is the number of distinct keys a synthetic
	// source cycles through.
	// Override via config: source.keys
	DefaultSyntheticKeys = 8

	// DefaultRecordsPerSecond spaces synthetic event timestamps.
	// Override via config: source.records_per_second
	DefaultRecordsPerSecond = 1000
)
