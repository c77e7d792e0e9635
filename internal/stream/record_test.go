package stream

import (
	"errors"
	"math"
	"testing"
)

func TestRoundValue(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int64
	}{
		{"integer", 42, 42},
		{"round down", 41.4, 41},
		{"round up", 41.5, 42},
		{"negative round", -41.5, -42},
		{"zero", 0, 0},
		{"large", 9.2e18, 9200000000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundValue(tt.in)
			if err != nil {
				t.Fatalf("RoundValue(%v) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("RoundValue(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundValueInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"above int64 range", 1e19},
		{"below int64 range", -1e19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RoundValue(tt.in); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("RoundValue(%v) error = %v, want ErrInvalidValue", tt.in, err)
			}
		})
	}
}

func TestRecordIntValue(t *testing.T) {
	rec := Record{TimestampMs: 1000, Key: "k1", Value: 7.6}
	v, err := rec.IntValue()
	if err != nil {
		t.Fatalf("IntValue returned error: %v", err)
	}
	if v != 8 {
		t.Errorf("IntValue = %d, want 8", v)
	}

	bad := Record{TimestampMs: 1000, Key: "k1", Value: math.NaN()}
	if _, err := bad.IntValue(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("IntValue on NaN error = %v, want ErrInvalidValue", err)
	}
}

func TestRecordTimestampTime(t *testing.T) {
	rec := Record{TimestampMs: 1700000000000, Key: "k", Value: 1}
	if got := rec.TimestampTime().UnixMilli(); got != rec.TimestampMs {
		t.Errorf("TimestampTime().UnixMilli() = %d, want %d", got, rec.TimestampMs)
	}
}
