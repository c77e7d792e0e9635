// Package stream defines the element type flowing through sources,
// window operators and aggregates.
package stream

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidValue indicates a value that cannot be represented in the
// integer domain the sketches operate on (NaN, infinity, or out of the
// int64 range). Such values are rejected, never coerced.
var ErrInvalidValue = errors.New("stream: value not representable in summary domain")

// Record is one element of an input stream.
type Record struct {
	// TimestampMs is the event time as a Unix timestamp in milliseconds.
	TimestampMs int64

	// Key partitions the stream; every windowed aggregate is computed
	// per key.
	Key string

	// Value is the raw measurement. Integer-domain sketches round it
	// via IntValue before accepting it.
	Value float64
}

// TimestampTime returns the event time as a time.Time.
func (r Record) TimestampTime() time.Time {
	return time.UnixMilli(r.TimestampMs)
}

// IntValue rounds the record's value to the nearest integer in the
// summary domain. It fails with ErrInvalidValue for non-finite values
// and for values the int64 domain cannot hold.
func (r Record) IntValue() (int64, error) {
	return RoundValue(r.Value)
}

// int64 boundaries in the float64 domain. float64(math.MaxInt64)
// rounds up to 2^63, one past the largest representable value, so the
// upper comparison must be exclusive while the lower one is inclusive.
const (
	maxValue = float64(math.MaxInt64)
	minValue = float64(math.MinInt64)
)

// RoundValue rounds v half away from zero to an int64.
// Non-finite and out-of-range values fail with ErrInvalidValue.
func RoundValue(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidValue
	}
	rounded := math.Round(v)
	if rounded >= maxValue || rounded < minValue {
		return 0, ErrInvalidValue
	}
	return int64(rounded), nil
}
