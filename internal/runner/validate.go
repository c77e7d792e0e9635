package runner

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/xtxerr/streamest/internal/quantile"
	"github.com/xtxerr/streamest/internal/source"
)

// Validate checks the configuration and reports every violation, not
// just the first.
func (c *Config) Validate() error {
	var errs []error

	// Aggregate kind
	validAggregates := map[string]bool{
		"quantile":    true,
		"ddsketch":    true,
		"cardinality": true,
		"stats":       true,
	}
	if !validAggregates[c.Aggregate] {
		errs = append(errs, fmt.Errorf("aggregate must be one of: quantile, ddsketch, cardinality, stats"))
	}

	// Window
	if err := c.Window.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}

	// Quantile
	if err := c.Quantile.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quantile: %w", err))
	}

	// Cardinality
	if err := c.Cardinality.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cardinality: %w", err))
	}

	// DDSketch
	if err := c.DDSketch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ddsketch: %w", err))
	}

	// Source
	if err := c.Source.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}

	// Sink
	if err := c.Sink.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sink: %w", err))
	}

	// Runner
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("runner: %w", err))
	}

	// Query
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the window configuration.
func (c *WindowConfig) Validate() error {
	var errs []error

	if c.SizeMs <= 0 {
		errs = append(errs, errors.New("size_ms must be positive"))
	}

	if c.SlideMs <= 0 {
		errs = append(errs, errors.New("slide_ms must be positive"))
	}

	if c.SizeMs > 0 && c.SlideMs > c.SizeMs {
		errs = append(errs, errors.New("slide_ms must not exceed size_ms"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the quantile configuration.
func (c *QuantileConfig) Validate() error {
	var errs []error

	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}

	for i, t := range c.Targets {
		if badFraction(t.Quantile) {
			errs = append(errs, fmt.Errorf("targets[%d].quantile must be between 0 and 1", i))
		}
		if t.Error != 0 && badFraction(t.Error) {
			errs = append(errs, fmt.Errorf("targets[%d].error must be between 0 and 1", i))
		}
	}

	if badFraction(c.Error) {
		errs = append(errs, errors.New("error must be between 0 and 1"))
	}

	for i, f := range c.Fractions {
		if badFraction(f) {
			errs = append(errs, fmt.Errorf("fractions[%d] must be between 0 and 1", i))
		}
	}

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}

	if _, err := parseRankPolicy(c.RankPolicy); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the cardinality configuration.
func (c *CardinalityConfig) Validate() error {
	var errs []error

	validSketches := map[string]bool{
		"linear":  true,
		"kmv":     true,
		"tipping": true,
	}
	if !validSketches[c.Sketch] {
		errs = append(errs, errors.New("sketch must be one of: linear, kmv, tipping"))
	}

	if c.Bits <= 0 {
		errs = append(errs, errors.New("bits must be positive"))
	}

	if c.K < 2 {
		errs = append(errs, errors.New("k must be at least 2"))
	}

	if c.TippingThreshold <= 0 {
		errs = append(errs, errors.New("tipping_threshold must be positive"))
	}

	validInner := map[string]bool{
		"linear": true,
		"kmv":    true,
	}
	if !validInner[c.Inner] {
		errs = append(errs, errors.New("inner must be one of: linear, kmv"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the ddsketch configuration.
func (c *DDSketchConfig) Validate() error {
	var errs []error

	if c.Accuracy <= 0 || c.Accuracy >= 1 {
		errs = append(errs, errors.New("accuracy must be between 0 and 1"))
	}

	if len(c.Fractions) == 0 {
		errs = append(errs, errors.New("at least one fraction is required"))
	}

	for i, f := range c.Fractions {
		if badFraction(f) {
			errs = append(errs, fmt.Errorf("fractions[%d] must be between 0 and 1", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the source configuration.
func (c *SourceConfig) Validate() error {
	var errs []error

	switch c.Kind {
	case "csv":
		if c.Path == "" {
			errs = append(errs, errors.New("path is required for csv sources"))
		}
	case "synthetic":
		if c.Count <= 0 {
			errs = append(errs, errors.New("count must be positive"))
		}
		if c.Keys <= 0 {
			errs = append(errs, errors.New("keys must be positive"))
		}
		if _, err := source.ParseDistribution(c.Distribution); err != nil {
			errs = append(errs, err)
		}
		if c.RecordsPerSecond <= 0 {
			errs = append(errs, errors.New("records_per_second must be positive"))
		}
	default:
		errs = append(errs, errors.New("kind must be one of: csv, synthetic"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sink configuration.
func (c *SinkConfig) Validate() error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}

	validCompression := map[string]bool{
		"snappy":       true,
		"zstd":         true,
		"lz4":          true,
		"gzip":         true,
		"none":         true,
		"uncompressed": true,
		"":             true, // Empty defaults to snappy
	}
	if !validCompression[c.Compression] {
		errs = append(errs, errors.New("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.RowGroupSize < 0 {
		errs = append(errs, errors.New("row_group_size must be non-negative"))
	}

	if c.PageSize < 0 {
		errs = append(errs, errors.New("page_size must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the runner configuration.
func (c *RunnerConfig) Validate() error {
	var errs []error

	validModes := map[string]bool{
		"fold":    true,
		"sharded": true,
	}
	if !validModes[c.Mode] {
		errs = append(errs, errors.New("mode must be one of: fold, sharded"))
	}

	if c.Mode == "sharded" && c.Shards <= 0 {
		errs = append(errs, errors.New("shards must be positive for sharded mode"))
	}

	validMeasurements := map[string]bool{
		"latency":    true,
		"throughput": true,
		"none":       true,
		"":           true, // Empty defaults to none
	}
	if !validMeasurements[c.Measurement] {
		errs = append(errs, errors.New("measurement must be one of: latency, throughput, none"))
	}

	if c.Measurement == "latency" && c.LatencySampleRate <= 0 {
		errs = append(errs, errors.New("latency_sample_rate must be positive for latency measurement"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	if c.MemoryLimit == "" {
		return errors.New("memory_limit is required")
	}
	return nil
}

// EnsureDirectories creates the output directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Sink.Dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", c.Sink.Dir, err)
	}
	return nil
}

// parseRankPolicy maps the config string to a summary rank policy.
// The empty string keeps the default.
func parseRankPolicy(s string) (quantile.RankPolicy, error) {
	switch s {
	case "", "summary-size":
		return quantile.PolicySummarySize, nil
	case "stream-count":
		return quantile.PolicyStreamCount, nil
	default:
		return 0, fmt.Errorf("rank_policy must be one of: summary-size, stream-count")
	}
}

func badFraction(f float64) bool {
	return math.IsNaN(f) || f <= 0 || f >= 1
}
