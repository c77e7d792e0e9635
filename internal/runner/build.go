package runner

import (
	"fmt"
	"strconv"

	"github.com/xtxerr/streamest/internal/aggregate"
	"github.com/xtxerr/streamest/internal/cardinality"
	"github.com/xtxerr/streamest/internal/quantile"
	"github.com/xtxerr/streamest/internal/sink"
	"github.com/xtxerr/streamest/internal/source"
	"github.com/xtxerr/streamest/internal/window"
)

// buildSource opens the configured record stream.
func buildSource(cfg *Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case "csv":
		return source.OpenCSV(cfg.Source.Path)
	case "synthetic":
		dist, err := source.ParseDistribution(cfg.Source.Distribution)
		if err != nil {
			return nil, err
		}
		return source.NewSynthetic(source.SyntheticConfig{
			Count:        cfg.Source.Count,
			Keys:         cfg.Source.Keys,
			Seed:         cfg.Source.Seed,
			Distribution: dist,
			StartMs:      cfg.Source.StartMs,
			StepMs:       int64(1000 / cfg.Source.RecordsPerSecond),
		})
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// buildQuantiles assembles the targeted-quantile adapter from the
// quantile section, filling per-target errors from the section default.
func buildQuantiles(cfg *Config) (*aggregate.Quantiles, error) {
	targets := make([]quantile.Target, len(cfg.Quantile.Targets))
	for i, t := range cfg.Quantile.Targets {
		e := t.Error
		if e == 0 {
			e = cfg.Quantile.Error
		}
		targets[i] = quantile.Target{Quantile: t.Quantile, Error: e}
	}
	policy, err := parseRankPolicy(cfg.Quantile.RankPolicy)
	if err != nil {
		return nil, err
	}
	return aggregate.NewQuantiles(targets, cfg.Quantile.Fractions,
		quantile.WithBatchSize(cfg.Quantile.BatchSize),
		quantile.WithRankPolicy(policy))
}

// buildSketchFactory returns a constructor for the configured
// cardinality sketch. Inner constructors are probed once so a bad
// configuration fails here rather than on the first tip.
func buildSketchFactory(cfg *Config) (func() (cardinality.Sketch, error), error) {
	card := cfg.Cardinality
	switch card.Sketch {
	case "linear":
		return func() (cardinality.Sketch, error) {
			return cardinality.NewLinearCounting(card.Bits)
		}, nil
	case "kmv":
		return func() (cardinality.Sketch, error) {
			return cardinality.NewKMinValues(card.K)
		}, nil
	case "tipping":
		inner, err := innerSketchFactory(card)
		if err != nil {
			return nil, err
		}
		return func() (cardinality.Sketch, error) {
			return cardinality.NewCountThenEstimate(card.TippingThreshold, inner)
		}, nil
	default:
		return nil, fmt.Errorf("unknown cardinality sketch %q", card.Sketch)
	}
}

func innerSketchFactory(card CardinalityConfig) (func() cardinality.Sketch, error) {
	switch card.Inner {
	case "linear":
		if _, err := cardinality.NewLinearCounting(card.Bits); err != nil {
			return nil, err
		}
		return func() cardinality.Sketch {
			s, _ := cardinality.NewLinearCounting(card.Bits)
			return s
		}, nil
	case "kmv":
		if _, err := cardinality.NewKMinValues(card.K); err != nil {
			return nil, err
		}
		return func() cardinality.Sketch {
			s, _ := cardinality.NewKMinValues(card.K)
			return s
		}, nil
	default:
		return nil, fmt.Errorf("unknown inner sketch %q", card.Inner)
	}
}

// metricName labels a quantile fraction, e.g. "q0.5", "q0.99".
func metricName(f float64) string {
	return "q" + strconv.FormatFloat(f, 'g', -1, 64)
}

// flattenQuantiles emits one row per queried fraction.
func flattenQuantiles(fractions []float64) func(window.Result[map[float64]int64]) []sink.ResultRow {
	return func(res window.Result[map[float64]int64]) []sink.ResultRow {
		rows := make([]sink.ResultRow, 0, len(fractions))
		for _, f := range fractions {
			rows = append(rows, resultRow(res.Key, res.StartMs, res.EndMs, res.Count, metricName(f), float64(res.Value[f])))
		}
		return rows
	}
}

// flattenDDSketch emits one row per queried fraction.
func flattenDDSketch(fractions []float64) func(window.Result[map[float64]float64]) []sink.ResultRow {
	return func(res window.Result[map[float64]float64]) []sink.ResultRow {
		rows := make([]sink.ResultRow, 0, len(fractions))
		for _, f := range fractions {
			rows = append(rows, resultRow(res.Key, res.StartMs, res.EndMs, res.Count, metricName(f), res.Value[f]))
		}
		return rows
	}
}

// flattenCardinality emits the distinct-count estimate.
func flattenCardinality(res window.Result[int64]) []sink.ResultRow {
	return []sink.ResultRow{
		resultRow(res.Key, res.StartMs, res.EndMs, res.Count, "distinct", float64(res.Value)),
	}
}

// flattenStats emits one row per moment; the record count is already a
// column of its own.
func flattenStats(res window.Result[aggregate.StatsResult]) []sink.ResultRow {
	return []sink.ResultRow{
		resultRow(res.Key, res.StartMs, res.EndMs, res.Count, "sum", res.Value.Sum),
		resultRow(res.Key, res.StartMs, res.EndMs, res.Count, "min", res.Value.Min),
		resultRow(res.Key, res.StartMs, res.EndMs, res.Count, "max", res.Value.Max),
		resultRow(res.Key, res.StartMs, res.EndMs, res.Count, "mean", res.Value.Mean),
	}
}

func resultRow(key string, start, end, count int64, metric string, estimate float64) sink.ResultRow {
	return sink.ResultRow{
		Key:         key,
		WindowStart: start,
		WindowEnd:   end,
		RecordCount: count,
		Metric:      metric,
		Estimate:    estimate,
	}
}
