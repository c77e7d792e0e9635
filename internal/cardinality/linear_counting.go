package cardinality

import (
	"fmt"
	"math"
	"math/bits"
)

// LinearCounting estimates distinct counts from bitmap occupancy.
// Each offered value sets one of m bits; the estimate is derived from
// the fraction of bits still zero. The estimator is accurate while the
// distinct count stays well below m and saturates at m once every bit
// is set.
type LinearCounting struct {
	words []uint64
	m     int
}

var _ Sketch = (*LinearCounting)(nil)

// NewLinearCounting returns a sketch with a bitmap of at least m bits.
// The size is rounded up to a multiple of 64.
func NewLinearCounting(m int) (*LinearCounting, error) {
	if m <= 0 {
		return nil, fmt.Errorf("cardinality: bitmap size must be positive, got %d", m)
	}
	nw := (m + 63) / 64
	return &LinearCounting{
		words: make([]uint64, nw),
		m:     nw * 64,
	}, nil
}

// Bits returns the bitmap size in bits.
func (lc *LinearCounting) Bits() int { return lc.m }

func (lc *LinearCounting) Offer(v int64) {
	h := hash64(v) % uint64(lc.m)
	lc.words[h/64] |= 1 << (h % 64)
}

func (lc *LinearCounting) Estimate() int64 {
	ones := 0
	for _, w := range lc.words {
		ones += bits.OnesCount64(w)
	}
	zeros := lc.m - ones
	if zeros == 0 {
		// Saturated: every bit set, m is the best answer available.
		return int64(lc.m)
	}
	return int64(math.Round(float64(lc.m) * math.Log(float64(lc.m)/float64(zeros))))
}

func (lc *LinearCounting) Merge(other Sketch) error {
	o, ok := other.(*LinearCounting)
	if !ok {
		return fmt.Errorf("%w: %T into *LinearCounting", ErrIncompatible, other)
	}
	if o.m != lc.m {
		return fmt.Errorf("%w: bitmap sizes %d and %d", ErrIncompatible, lc.m, o.m)
	}
	for i, w := range o.words {
		lc.words[i] |= w
	}
	return nil
}

func (lc *LinearCounting) Clone() Sketch {
	words := make([]uint64, len(lc.words))
	copy(words, lc.words)
	return &LinearCounting{words: words, m: lc.m}
}
