package aggregate

import (
	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/streamest/internal/stream"
)

// DDSketch folds record values into a DataDog sketch with fixed
// relative accuracy and lowers to float64 estimates per queried
// fraction. Unlike the targeted summary it bounds relative rather than
// rank error, which makes it the better fit for long-tailed values.
type DDSketch struct {
	accuracy  float64
	fractions []float64
}

var (
	_ Func[*ddsketch.DDSketch, map[float64]float64] = (*DDSketch)(nil)
	_ Cloneable[*ddsketch.DDSketch]                 = (*DDSketch)(nil)
)

// NewDDSketch builds an adapter with the given relative accuracy.
// Fractions default to the 50th, 90th, and 99th percentiles.
func NewDDSketch(accuracy float64, fractions []float64) (*DDSketch, error) {
	if _, err := ddsketch.NewDefaultDDSketch(accuracy); err != nil {
		return nil, err
	}
	if len(fractions) == 0 {
		fractions = []float64{0.5, 0.9, 0.99}
	}
	return &DDSketch{accuracy: accuracy, fractions: fractions}, nil
}

func (d *DDSketch) Lift(rec stream.Record) (*ddsketch.DDSketch, error) {
	s, err := ddsketch.NewDefaultDDSketch(d.accuracy)
	if err != nil {
		return nil, err
	}
	return d.LiftAndCombine(s, rec)
}

func (d *DDSketch) LiftAndCombine(s *ddsketch.DDSketch, rec stream.Record) (*ddsketch.DDSketch, error) {
	if err := s.Add(rec.Value); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *DDSketch) Combine(a, b *ddsketch.DDSketch) (*ddsketch.DDSketch, error) {
	if err := a.MergeWith(b); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DDSketch) Lower(s *ddsketch.DDSketch) (map[float64]float64, error) {
	out := make(map[float64]float64, len(d.fractions))
	for _, f := range d.fractions {
		v, err := s.GetValueAtQuantile(f)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// Clone merges the partial into a fresh sketch; sketches-go offers no
// in-place deep copy with the same mapping guarantees.
func (d *DDSketch) Clone(s *ddsketch.DDSketch) (*ddsketch.DDSketch, error) {
	fresh, err := ddsketch.NewDefaultDDSketch(d.accuracy)
	if err != nil {
		return nil, err
	}
	if err := fresh.MergeWith(s); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Fractions returns the fractions Lower reports, in query order.
func (d *DDSketch) Fractions() []float64 { return d.fractions }
