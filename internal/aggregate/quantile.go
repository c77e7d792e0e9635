package aggregate

import (
	"github.com/xtxerr/streamest/internal/quantile"
	"github.com/xtxerr/streamest/internal/stream"
)

// Quantiles folds record values into a targeted quantile summary and
// lowers to one point estimate per queried fraction.
type Quantiles struct {
	targets   []quantile.Target
	fractions []float64
	opts      []quantile.Option
}

var (
	_ Func[*quantile.Summary, map[float64]int64] = (*Quantiles)(nil)
	_ Cloneable[*quantile.Summary]               = (*Quantiles)(nil)
)

// NewQuantiles builds an adapter tracking the given targets. The
// queried fractions default to the target quantiles themselves.
// Construction is probed once up front so Lift cannot fail later on a
// bad configuration.
func NewQuantiles(targets []quantile.Target, fractions []float64, opts ...quantile.Option) (*Quantiles, error) {
	if _, err := quantile.New(targets, opts...); err != nil {
		return nil, err
	}
	if len(fractions) == 0 {
		fractions = make([]float64, len(targets))
		for i, tgt := range targets {
			fractions[i] = tgt.Quantile
		}
	}
	return &Quantiles{targets: targets, fractions: fractions, opts: opts}, nil
}

func (q *Quantiles) Lift(rec stream.Record) (*quantile.Summary, error) {
	s, err := quantile.New(q.targets, q.opts...)
	if err != nil {
		return nil, err
	}
	return q.LiftAndCombine(s, rec)
}

func (q *Quantiles) LiftAndCombine(s *quantile.Summary, rec stream.Record) (*quantile.Summary, error) {
	v, err := rec.IntValue()
	if err != nil {
		return nil, err
	}
	s.Offer(v)
	return s, nil
}

func (q *Quantiles) Combine(a, b *quantile.Summary) (*quantile.Summary, error) {
	if err := a.Merge(b); err != nil {
		return nil, err
	}
	return a, nil
}

func (q *Quantiles) Lower(s *quantile.Summary) (map[float64]int64, error) {
	out := make(map[float64]int64, len(q.fractions))
	for _, f := range q.fractions {
		v, err := s.Query(f)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

func (q *Quantiles) Clone(s *quantile.Summary) (*quantile.Summary, error) {
	return s.Clone(), nil
}

// Fractions returns the fractions Lower reports, in query order.
func (q *Quantiles) Fractions() []float64 { return q.fractions }
