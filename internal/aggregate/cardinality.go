package aggregate

import (
	"errors"

	"github.com/xtxerr/streamest/internal/cardinality"
	"github.com/xtxerr/streamest/internal/stream"
)

// Cardinality estimates the number of distinct record values per
// window. The sketch constructor is injected so one adapter serves
// linear counting, k-min-values, and the tipping combination alike.
type Cardinality struct {
	newSketch func() (cardinality.Sketch, error)
}

var (
	_ Func[cardinality.Sketch, int64] = (*Cardinality)(nil)
	_ Cloneable[cardinality.Sketch]   = (*Cardinality)(nil)
)

// NewCardinality builds an adapter that opens partials with newSketch.
func NewCardinality(newSketch func() (cardinality.Sketch, error)) (*Cardinality, error) {
	if newSketch == nil {
		return nil, errors.New("aggregate: nil sketch constructor")
	}
	return &Cardinality{newSketch: newSketch}, nil
}

func (c *Cardinality) Lift(rec stream.Record) (cardinality.Sketch, error) {
	s, err := c.newSketch()
	if err != nil {
		return nil, err
	}
	return c.LiftAndCombine(s, rec)
}

func (c *Cardinality) LiftAndCombine(s cardinality.Sketch, rec stream.Record) (cardinality.Sketch, error) {
	v, err := rec.IntValue()
	if err != nil {
		return nil, err
	}
	s.Offer(v)
	return s, nil
}

func (c *Cardinality) Combine(a, b cardinality.Sketch) (cardinality.Sketch, error) {
	if err := a.Merge(b); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Cardinality) Lower(s cardinality.Sketch) (int64, error) {
	return s.Estimate(), nil
}

func (c *Cardinality) Clone(s cardinality.Sketch) (cardinality.Sketch, error) {
	return s.Clone(), nil
}
