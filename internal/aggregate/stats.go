package aggregate

import (
	"math"

	"github.com/xtxerr/streamest/internal/stream"
)

// Stats is the partial state of the exact running-statistics baseline.
type Stats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// StatsResult is the lowered form of Stats.
type StatsResult struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

// StatsFunc aggregates count/sum/min/max/mean exactly. It is the cheap
// baseline the sketch aggregates are measured against.
type StatsFunc struct{}

var (
	_ Func[*Stats, StatsResult] = StatsFunc{}
	_ Cloneable[*Stats]         = StatsFunc{}
)

func (StatsFunc) Lift(rec stream.Record) (*Stats, error) {
	return &Stats{Count: 1, Sum: rec.Value, Min: rec.Value, Max: rec.Value}, nil
}

func (StatsFunc) LiftAndCombine(s *Stats, rec stream.Record) (*Stats, error) {
	s.Count++
	s.Sum += rec.Value
	s.Min = math.Min(s.Min, rec.Value)
	s.Max = math.Max(s.Max, rec.Value)
	return s, nil
}

func (StatsFunc) Combine(a, b *Stats) (*Stats, error) {
	a.Count += b.Count
	a.Sum += b.Sum
	a.Min = math.Min(a.Min, b.Min)
	a.Max = math.Max(a.Max, b.Max)
	return a, nil
}

func (StatsFunc) Lower(s *Stats) (StatsResult, error) {
	res := StatsResult{Count: s.Count, Sum: s.Sum, Min: s.Min, Max: s.Max}
	if s.Count > 0 {
		res.Mean = s.Sum / float64(s.Count)
	}
	return res, nil
}

func (StatsFunc) Clone(s *Stats) (*Stats, error) {
	cp := *s
	return &cp, nil
}
