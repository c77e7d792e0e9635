package window

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/xtxerr/streamest/internal/aggregate"
	"github.com/xtxerr/streamest/internal/stream"
)

// Result is one closed window for one key.
type Result[R any] struct {
	Key     string
	StartMs int64
	EndMs   int64
	Count   int64
	Value   R
}

type pane[P any] struct {
	partial P
	count   int64
}

// Operator folds records into keyed per-pane partials and emits window
// results as the watermark advances. It is single-goroutine by
// contract; the runner gives every shard its own instance and merges
// results afterwards.
type Operator[P, R any] struct {
	fn       aggregate.Func[P, R]
	cloner   aggregate.Cloneable[P]
	assigner *Assigner

	panes     map[string]map[int64]*pane[P] // key -> pane start -> state
	watermark int64
	processed int64
	late      int64
}

// NewOperator builds an operator over the given aggregate. Sliding
// windows share pane partials across overlapping windows, so their
// aggregate must also implement Cloneable.
func NewOperator[P, R any](fn aggregate.Func[P, R], assigner *Assigner) (*Operator[P, R], error) {
	if fn == nil {
		return nil, fmt.Errorf("window: nil aggregate")
	}
	if assigner == nil {
		return nil, fmt.Errorf("window: nil assigner")
	}
	cloner, cloneable := fn.(aggregate.Cloneable[P])
	if assigner.Sliding() && !cloneable {
		return nil, fmt.Errorf("window: sliding windows need a cloneable aggregate, %T is not", fn)
	}
	return &Operator[P, R]{
		fn:        fn,
		cloner:    cloner,
		assigner:  assigner,
		panes:     make(map[string]map[int64]*pane[P]),
		watermark: math.MinInt64,
	}, nil
}

// Process folds one record into its key's pane. Records whose pane
// already fell behind the watermark are counted late and dropped.
func (op *Operator[P, R]) Process(rec stream.Record) error {
	ps := op.assigner.PaneStart(rec.TimestampMs)
	if ps+op.assigner.PaneLength() <= op.watermark {
		op.late++
		return nil
	}
	byPane := op.panes[rec.Key]
	if byPane == nil {
		byPane = make(map[int64]*pane[P])
		op.panes[rec.Key] = byPane
	}
	pn := byPane[ps]
	if pn == nil {
		p, err := op.fn.Lift(rec)
		if err != nil {
			return fmt.Errorf("window: key %q at %dms: %w", rec.Key, rec.TimestampMs, err)
		}
		byPane[ps] = &pane[P]{partial: p, count: 1}
	} else {
		p, err := op.fn.LiftAndCombine(pn.partial, rec)
		if err != nil {
			return fmt.Errorf("window: key %q at %dms: %w", rec.Key, rec.TimestampMs, err)
		}
		pn.partial = p
		pn.count++
	}
	op.processed++
	return nil
}

// Advance moves the watermark forward and emits every window whose end
// is at or before it, ordered by key then window start. Watermark
// regressions are ignored.
func (op *Operator[P, R]) Advance(watermark int64) ([]Result[R], error) {
	if watermark <= op.watermark {
		return nil, nil
	}
	op.watermark = watermark
	return op.emit(watermark)
}

// Close force-emits all outstanding windows regardless of watermark
// and leaves the operator empty.
func (op *Operator[P, R]) Close() ([]Result[R], error) {
	op.watermark = math.MaxInt64
	return op.emit(math.MaxInt64)
}

// Partial is one window's combined state before lowering.
type Partial[P any] struct {
	Key     string
	StartMs int64
	EndMs   int64
	Count   int64
	State   P
}

// Drain combines each outstanding window's panes and returns the
// partials without lowering, leaving the operator empty. Sharded
// execution uses it to merge worker states before one final Lower.
func (op *Operator[P, R]) Drain() ([]Partial[P], error) {
	op.watermark = math.MaxInt64
	return op.drain(math.MaxInt64)
}

// Watermark returns the current watermark in milliseconds.
func (op *Operator[P, R]) Watermark() int64 { return op.watermark }

// Processed returns the number of records folded into panes.
func (op *Operator[P, R]) Processed() int64 { return op.processed }

// Late returns the number of records dropped behind the watermark.
func (op *Operator[P, R]) Late() int64 { return op.late }

type keyedWindow struct {
	key   string
	start int64
}

// emit closes every due window and lowers each combined partial.
func (op *Operator[P, R]) emit(limit int64) ([]Result[R], error) {
	parts, err := op.drain(limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result[R], 0, len(parts))
	for _, p := range parts {
		value, err := op.fn.Lower(p.State)
		if err != nil {
			return results, fmt.Errorf("window: lower [%d,%d)ms key %q: %w", p.StartMs, p.EndMs, p.Key, err)
		}
		results = append(results, Result[R]{
			Key:     p.Key,
			StartMs: p.StartMs,
			EndMs:   p.EndMs,
			Count:   p.Count,
			Value:   value,
		})
	}
	return results, nil
}

// drain combines the panes of every populated window ending at or
// before limit and retires panes no later window can reference.
func (op *Operator[P, R]) drain(limit int64) ([]Partial[P], error) {
	seen := make(map[keyedWindow]struct{})
	var due []keyedWindow
	for key, byPane := range op.panes {
		for ps := range byPane {
			for _, ws := range op.assigner.WindowsForPane(ps) {
				if ws+op.assigner.Size() > limit {
					continue
				}
				kw := keyedWindow{key, ws}
				if _, dup := seen[kw]; !dup {
					seen[kw] = struct{}{}
					due = append(due, kw)
				}
			}
		}
	}
	if len(due) == 0 {
		op.retire(limit)
		return nil, nil
	}
	slices.SortFunc(due, func(x, y keyedWindow) int {
		if c := cmp.Compare(x.key, y.key); c != 0 {
			return c
		}
		return cmp.Compare(x.start, y.start)
	})

	parts := make([]Partial[P], 0, len(due))
	for _, kw := range due {
		byPane := op.panes[kw.key]
		var starts []int64
		for ps := range byPane {
			if ps >= kw.start && ps < kw.start+op.assigner.Size() {
				starts = append(starts, ps)
			}
		}
		slices.Sort(starts)

		var acc P
		var count int64
		for i, ps := range starts {
			pn := byPane[ps]
			part := pn.partial
			// Sliding panes serve several windows, and combining may
			// consume its operands. Tumbling panes die with their
			// window, so they go in as they are.
			if op.assigner.Sliding() {
				cp, err := op.cloner.Clone(part)
				if err != nil {
					return nil, fmt.Errorf("window: clone pane %dms key %q: %w", ps, kw.key, err)
				}
				part = cp
			}
			if i == 0 {
				acc = part
			} else {
				combined, err := op.fn.Combine(acc, part)
				if err != nil {
					return nil, fmt.Errorf("window: combine [%d,%d)ms key %q: %w", kw.start, kw.start+op.assigner.Size(), kw.key, err)
				}
				acc = combined
			}
			count += pn.count
		}
		parts = append(parts, Partial[P]{
			Key:     kw.key,
			StartMs: kw.start,
			EndMs:   kw.start + op.assigner.Size(),
			Count:   count,
			State:   acc,
		})
	}
	op.retire(limit)
	return parts, nil
}

// retire drops panes whose latest covering window closed at or before
// limit.
func (op *Operator[P, R]) retire(limit int64) {
	for key, byPane := range op.panes {
		for ps := range byPane {
			if op.assigner.lastWindowEnd(ps) <= limit {
				delete(byPane, ps)
			}
		}
		if len(byPane) == 0 {
			delete(op.panes, key)
		}
	}
}
