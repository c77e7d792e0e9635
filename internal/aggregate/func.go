// Package aggregate defines the mergeable-partial-aggregate contract
// used by the window engine, plus concrete adapters for the targeted
// quantile summary, DDSketch, the cardinality sketches, and exact
// running statistics.
package aggregate

import "github.com/xtxerr/streamest/internal/stream"

// Func is one window aggregate over partial state P producing result R.
//
// The window engine opens partials with Lift, folds further records
// into them with LiftAndCombine, merges independently built partials
// with Combine, and projects the result with Lower once a window
// closes. Combine must be associative: combining pane partials in any
// grouping yields the same result.
type Func[P, R any] interface {
	// Lift opens a fresh partial state from a single record.
	Lift(rec stream.Record) (P, error)

	// LiftAndCombine folds one record into an existing partial. This is
	// the hot path for every record after a pane's first.
	LiftAndCombine(p P, rec stream.Record) (P, error)

	// Combine merges two partials into one. Implementations may reuse
	// either operand's storage; callers that need an operand intact
	// afterwards pass a clone.
	Combine(a, b P) (P, error)

	// Lower projects a partial to its externally visible result.
	Lower(p P) (R, error)
}

// Cloneable is implemented by aggregates whose partials are shared
// across overlapping windows and must be copied rather than aliased.
type Cloneable[P any] interface {
	// Clone returns an independent deep copy of the partial.
	Clone(p P) (P, error)
}
