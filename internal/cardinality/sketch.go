// Package cardinality implements approximate distinct-count sketches
// behind one mergeable interface.
//
// Three estimators are provided:
//   - LinearCounting: bitmap occupancy, accurate while the bitmap is
//     sparse relative to the distinct count
//   - KMinValues: the k smallest hashes, exact below k distinct values
//   - CountThenEstimate: exact set until a tipping threshold, then any
//     of the above
//
// All sketches hash offered values with xxhash into a common 64-bit
// domain, so sketches of the same type and configuration built from
// different stream partitions merge into an estimate of the union.
// Like the quantile summary, a sketch has a single owner at any time
// and is not safe for concurrent use.
package cardinality

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrIncompatible is returned by Merge when the two sketches differ in
// type or configuration. A failed merge leaves both sketches untouched.
var ErrIncompatible = errors.New("cardinality: incompatible sketches")

// Sketch is a mergeable distinct-count estimator.
type Sketch interface {
	// Offer adds one value to the sketch.
	Offer(v int64)

	// Estimate returns the approximate number of distinct values
	// offered so far.
	Estimate() int64

	// Merge absorbs another sketch of the same type and configuration,
	// yielding an estimate of the union. Mismatches fail with
	// ErrIncompatible.
	Merge(other Sketch) error

	// Clone returns an independent deep copy.
	Clone() Sketch
}

// hash64 maps a value into the shared 64-bit hash domain.
func hash64(v int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}
