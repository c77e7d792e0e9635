package cardinality

import "fmt"

// CountThenEstimate counts exactly in a hash set until the distinct
// count crosses a tipping threshold, then migrates into an approximate
// sketch built by the factory and stays approximate from then on. Small
// stream partitions pay no estimation error; only partitions that
// outgrow the threshold do.
type CountThenEstimate struct {
	threshold int
	factory   func() Sketch

	exact  map[int64]struct{} // nil once tipped
	sketch Sketch             // non-nil once tipped
}

var _ Sketch = (*CountThenEstimate)(nil)

// NewCountThenEstimate returns a sketch that counts exactly up to
// threshold distinct values and then tips into a factory-built sketch.
func NewCountThenEstimate(threshold int, factory func() Sketch) (*CountThenEstimate, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("cardinality: tipping threshold must be positive, got %d", threshold)
	}
	if factory == nil {
		return nil, fmt.Errorf("cardinality: nil sketch factory")
	}
	return &CountThenEstimate{
		threshold: threshold,
		factory:   factory,
		exact:     make(map[int64]struct{}),
	}, nil
}

// Tipped reports whether the sketch has abandoned exact counting.
func (c *CountThenEstimate) Tipped() bool { return c.sketch != nil }

func (c *CountThenEstimate) Offer(v int64) {
	if c.sketch != nil {
		c.sketch.Offer(v)
		return
	}
	c.exact[v] = struct{}{}
	if len(c.exact) > c.threshold {
		c.tip()
	}
}

// tip replays the exact set into a fresh factory-built sketch and
// releases the set.
func (c *CountThenEstimate) tip() {
	s := c.factory()
	for v := range c.exact {
		s.Offer(v)
	}
	c.sketch = s
	c.exact = nil
}

func (c *CountThenEstimate) Estimate() int64 {
	if c.sketch != nil {
		return c.sketch.Estimate()
	}
	return int64(len(c.exact))
}

// Merge combines two tipping sketches. Exact operands union their sets,
// which may itself tip the receiver; an approximate operand forces the
// exact side to tip first and then delegates to the inner sketch merge.
// Factories are not comparable, so mismatched inner configurations
// surface from that delegated merge; the receiver is left unchanged
// when it fails.
func (c *CountThenEstimate) Merge(other Sketch) error {
	o, ok := other.(*CountThenEstimate)
	if !ok {
		return fmt.Errorf("%w: %T into *CountThenEstimate", ErrIncompatible, other)
	}
	if o.threshold != c.threshold {
		return fmt.Errorf("%w: tipping thresholds %d and %d", ErrIncompatible, c.threshold, o.threshold)
	}
	switch {
	case c.sketch == nil && o.sketch == nil:
		for v := range o.exact {
			c.exact[v] = struct{}{}
		}
		if len(c.exact) > c.threshold {
			c.tip()
		}
		return nil
	case c.sketch == nil:
		// Tip into a candidate so a failed inner merge leaves the
		// receiver exact.
		cand := c.factory()
		for v := range c.exact {
			cand.Offer(v)
		}
		if err := cand.Merge(o.sketch); err != nil {
			return err
		}
		c.sketch = cand
		c.exact = nil
		return nil
	case o.sketch == nil:
		for v := range o.exact {
			c.sketch.Offer(v)
		}
		return nil
	default:
		return c.sketch.Merge(o.sketch)
	}
}

func (c *CountThenEstimate) Clone() Sketch {
	cl := &CountThenEstimate{threshold: c.threshold, factory: c.factory}
	if c.sketch != nil {
		cl.sketch = c.sketch.Clone()
		return cl
	}
	cl.exact = make(map[int64]struct{}, len(c.exact))
	for v := range c.exact {
		cl.exact[v] = struct{}{}
	}
	return cl
}
