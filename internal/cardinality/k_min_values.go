package cardinality

import (
	"fmt"
	"math"
	"slices"
)

// KMinValues keeps the k smallest distinct hashes seen. Below k
// distinct values the count is exact; at capacity the kth smallest
// hash measures how densely the hash space is populated and the
// estimate is (k-1) * 2^64 / kth.
type KMinValues struct {
	k      int
	hashes []uint64 // sorted ascending, distinct
}

var _ Sketch = (*KMinValues)(nil)

// NewKMinValues returns a sketch retaining the k smallest hashes.
func NewKMinValues(k int) (*KMinValues, error) {
	if k < 2 {
		return nil, fmt.Errorf("cardinality: k must be at least 2, got %d", k)
	}
	return &KMinValues{
		k:      k,
		hashes: make([]uint64, 0, k),
	}, nil
}

// K returns the retention capacity.
func (kmv *KMinValues) K() int { return kmv.k }

func (kmv *KMinValues) Offer(v int64) {
	kmv.offerHash(hash64(v))
}

func (kmv *KMinValues) offerHash(h uint64) {
	i, found := slices.BinarySearch(kmv.hashes, h)
	if found {
		return
	}
	if len(kmv.hashes) == kmv.k {
		if i == kmv.k {
			return // larger than everything retained
		}
		kmv.hashes = slices.Insert(kmv.hashes, i, h)
		kmv.hashes = kmv.hashes[:kmv.k]
		return
	}
	kmv.hashes = slices.Insert(kmv.hashes, i, h)
}

func (kmv *KMinValues) Estimate() int64 {
	if len(kmv.hashes) < kmv.k {
		return int64(len(kmv.hashes))
	}
	kth := kmv.hashes[kmv.k-1]
	return int64(math.Round(float64(kmv.k-1) * math.Exp2(64) / float64(kth)))
}

func (kmv *KMinValues) Merge(other Sketch) error {
	o, ok := other.(*KMinValues)
	if !ok {
		return fmt.Errorf("%w: %T into *KMinValues", ErrIncompatible, other)
	}
	if o.k != kmv.k {
		return fmt.Errorf("%w: retention %d and %d", ErrIncompatible, kmv.k, o.k)
	}
	for _, h := range o.hashes {
		kmv.offerHash(h)
	}
	return nil
}

func (kmv *KMinValues) Clone() Sketch {
	hashes := make([]uint64, len(kmv.hashes), kmv.k)
	copy(hashes, kmv.hashes)
	return &KMinValues{k: kmv.k, hashes: hashes}
}
