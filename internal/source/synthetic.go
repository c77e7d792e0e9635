package source

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/xtxerr/streamest/internal/stream"
)

// Distribution describes how synthetic values are drawn. Build one
// with ParseDistribution.
type Distribution struct {
	kind string
	a    float64
	b    float64
	max  uint64
}

// String returns the distribution as a canonical spec string.
func (d Distribution) String() string {
	switch d.kind {
	case "zipf":
		return fmt.Sprintf("zipf(%g,%g,%d)", d.a, d.b, d.max)
	default:
		return fmt.Sprintf("%s(%g,%g)", d.kind, d.a, d.b)
	}
}

// ParseDistribution parses a value distribution spec. Supported forms:
//
//	uniform(lo,hi)      values in [lo, hi)
//	normal(mean,stddev) gaussian values
//	zipf(s,v,max)       skewed integers in [0, max], s > 1, v >= 1
func ParseDistribution(spec string) (Distribution, error) {
	spec = strings.TrimSpace(spec)
	open := strings.IndexByte(spec, '(')
	if open < 0 || !strings.HasSuffix(spec, ")") {
		return Distribution{}, fmt.Errorf("source: malformed distribution %q", spec)
	}
	name := spec[:open]
	args := strings.Split(spec[open+1:len(spec)-1], ",")

	parse := func(i int) (float64, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(args[i]), 64)
		if err != nil {
			return 0, fmt.Errorf("source: distribution %q: bad argument %q", spec, args[i])
		}
		return f, nil
	}

	switch name {
	case "uniform":
		if len(args) != 2 {
			return Distribution{}, fmt.Errorf("source: uniform takes (lo,hi), got %q", spec)
		}
		lo, err := parse(0)
		if err != nil {
			return Distribution{}, err
		}
		hi, err := parse(1)
		if err != nil {
			return Distribution{}, err
		}
		if hi <= lo {
			return Distribution{}, fmt.Errorf("source: uniform needs hi > lo, got %q", spec)
		}
		return Distribution{kind: "uniform", a: lo, b: hi}, nil
	case "normal":
		if len(args) != 2 {
			return Distribution{}, fmt.Errorf("source: normal takes (mean,stddev), got %q", spec)
		}
		mean, err := parse(0)
		if err != nil {
			return Distribution{}, err
		}
		stddev, err := parse(1)
		if err != nil {
			return Distribution{}, err
		}
		if stddev < 0 {
			return Distribution{}, fmt.Errorf("source: normal needs stddev >= 0, got %q", spec)
		}
		return Distribution{kind: "normal", a: mean, b: stddev}, nil
	case "zipf":
		if len(args) != 3 {
			return Distribution{}, fmt.Errorf("source: zipf takes (s,v,max), got %q", spec)
		}
		s, err := parse(0)
		if err != nil {
			return Distribution{}, err
		}
		v, err := parse(1)
		if err != nil {
			return Distribution{}, err
		}
		maxf, err := parse(2)
		if err != nil {
			return Distribution{}, err
		}
		// rand.NewZipf silently returns nil outside these ranges.
		if s <= 1 || v < 1 || maxf < 1 {
			return Distribution{}, fmt.Errorf("source: zipf needs s > 1, v >= 1, max >= 1, got %q", spec)
		}
		return Distribution{kind: "zipf", a: s, b: v, max: uint64(maxf)}, nil
	default:
		return Distribution{}, fmt.Errorf("source: unknown distribution %q", name)
	}
}

// SyntheticConfig configures a generated record stream.
type SyntheticConfig struct {
	Count        int64
	Keys         int
	Seed         int64
	Distribution Distribution
	StartMs      int64
	StepMs       int64 // timestamp advance per record, default 1
}

// Synthetic generates a reproducible record stream: a fixed seed
// yields the same records in the same order.
type Synthetic struct {
	rng     *rand.Rand
	sample  func() float64
	keys    []string
	n       int64
	emitted int64
	ts      int64
	step    int64
}

var _ Source = (*Synthetic)(nil)

// NewSynthetic builds a generator from the config.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("source: synthetic count must be positive, got %d", cfg.Count)
	}
	if cfg.Keys <= 0 {
		return nil, fmt.Errorf("source: synthetic key count must be positive, got %d", cfg.Keys)
	}
	step := cfg.StepMs
	if step == 0 {
		step = 1
	}
	if step < 0 {
		return nil, fmt.Errorf("source: synthetic timestamp step must advance, got %dms", step)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var sample func() float64
	switch cfg.Distribution.kind {
	case "uniform":
		lo, hi := cfg.Distribution.a, cfg.Distribution.b
		sample = func() float64 { return lo + rng.Float64()*(hi-lo) }
	case "normal":
		mean, stddev := cfg.Distribution.a, cfg.Distribution.b
		sample = func() float64 { return mean + rng.NormFloat64()*stddev }
	case "zipf":
		z := rand.NewZipf(rng, cfg.Distribution.a, cfg.Distribution.b, cfg.Distribution.max)
		sample = func() float64 { return float64(z.Uint64()) }
	default:
		return nil, fmt.Errorf("source: synthetic needs a parsed distribution")
	}

	keys := make([]string, cfg.Keys)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return &Synthetic{
		rng:    rng,
		sample: sample,
		keys:   keys,
		n:      cfg.Count,
		ts:     cfg.StartMs,
		step:   step,
	}, nil
}

func (s *Synthetic) Next() (stream.Record, error) {
	if s.emitted >= s.n {
		return stream.Record{}, io.EOF
	}
	rec := stream.Record{
		TimestampMs: s.ts,
		Key:         s.keys[s.rng.Intn(len(s.keys))],
		Value:       s.sample(),
	}
	s.ts += s.step
	s.emitted++
	return rec, nil
}
