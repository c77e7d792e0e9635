// Package quantile implements a targeted-error streaming quantile
// summary (Cormode, Korn, Muthukrishnan and Srivastava; CKMS).
//
// A Summary tracks a configured set of quantile targets over an
// unbounded integer stream in bounded memory. Offered values are
// buffered, bulk-inserted in sorted order and compressed against the
// per-target error bounds: each surviving record carries the rank span
// it absorbed (g) and an uncertainty width fixed at insertion (delta),
// which together keep every tracked quantile answerable within its
// configured error.
//
// Summaries merge by value replay and clone by deep copy, which makes
// them usable as combinable partial aggregates in a windowed pipeline
// (see the aggregate package).
//
// A Summary is not safe for concurrent use. The windowing layer owns
// each instance exclusively for its lifetime.
package quantile

import (
	"errors"
	"math"
	"slices"

	"github.com/xtxerr/streamest/config"
)

var (
	// ErrEmpty is returned by Query when no value was ever offered.
	ErrEmpty = errors.New("quantile: empty summary")

	// ErrIncompatible is returned by Merge when the two summaries were
	// configured with different target sets or rank policies.
	ErrIncompatible = errors.New("quantile: incompatible summary configurations")

	// ErrInvalidFraction is returned by Query for fractions outside (0, 1).
	ErrInvalidFraction = errors.New("quantile: fraction outside (0, 1)")
)

// RankPolicy selects the size basis of the error-bound function.
type RankPolicy int

const (
	// PolicySummarySize evaluates error bounds against the live record
	// count of the summary. This keeps memory bounded in practice and
	// is the default.
	PolicySummarySize RankPolicy = iota

	// PolicyStreamCount evaluates error bounds against the total count
	// of offered values, as the published algorithm specifies. Bounds
	// are tighter but the summary can grow with the stream.
	PolicyStreamCount
)

// String returns a human-readable representation of the RankPolicy.
func (p RankPolicy) String() string {
	switch p {
	case PolicySummarySize:
		return "summary-size"
	case PolicyStreamCount:
		return "stream-count"
	default:
		return "unknown"
	}
}

// record is one entry of the sorted summary. g counts the ranks the
// record absorbed since the previous surviving record; delta is the
// uncertainty width assigned at insertion and never changes afterwards.
type record struct {
	value int64
	g     int64
	delta int64
}

// Summary is a CKMS streaming quantile summary over int64 values.
type Summary struct {
	targets   []target // compiled targets, shared with clones
	policy    RankPolicy
	batchSize int

	records []record // sorted by value, ties in insertion order
	buffer  []int64  // pending values, inserted at the next flush
	count   int64    // values inserted so far (buffered values join at flush)
}

// Option configures a Summary at construction.
type Option func(*Summary) error

// WithBatchSize sets the pending-buffer capacity. Inserts are batched
// and compressed at this boundary.
func WithBatchSize(n int) Option {
	return func(s *Summary) error {
		if n < 1 {
			return errors.New("quantile: batch size must be positive")
		}
		s.batchSize = n
		return nil
	}
}

// WithRankPolicy selects the error-bound size basis. Summaries with
// different policies do not merge.
func WithRankPolicy(p RankPolicy) Option {
	return func(s *Summary) error {
		if p != PolicySummarySize && p != PolicyStreamCount {
			return errors.New("quantile: unknown rank policy")
		}
		s.policy = p
		return nil
	}
}

// New creates an empty summary tracking the given targets. The target
// set is fixed for the summary's lifetime and must match across
// summaries that merge.
func New(targets []Target, opts ...Option) (*Summary, error) {
	compiled, err := compileTargets(targets)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		targets:   compiled,
		policy:    PolicySummarySize,
		batchSize: config.DefaultBatchSize,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.buffer = make([]int64, 0, s.batchSize)
	return s, nil
}

// Offer buffers one value. When the buffer reaches the batch size the
// pending values are inserted and the summary is compressed.
func (s *Summary) Offer(v int64) {
	s.buffer = append(s.buffer, v)
	if len(s.buffer) >= s.batchSize {
		s.flush()
	}
}

// flush materializes all buffered values into the sorted summary.
func (s *Summary) flush() {
	s.insertBatch()
	s.compress()
}

// =============================================================================
// Insertion
// =============================================================================

// insertBatch sorts the pending buffer and merges it into the record
// sequence in one forward pass. Each inserted record gets g = 1 and a
// delta of floor(allowableError(position)) - 1, except at either end
// of the summary where delta is 0.
func (s *Summary) insertBatch() {
	if len(s.buffer) == 0 {
		return
	}
	slices.Sort(s.buffer)

	bi := 0
	if len(s.records) == 0 {
		s.records = append(s.records, record{value: s.buffer[0], g: 1})
		s.count++
		bi = 1
	}

	if bi < len(s.buffer) {
		merged := make([]record, 0, len(s.records)+len(s.buffer)-bi)
		ri := 0
		for ; bi < len(s.buffer); bi++ {
			v := s.buffer[bi]
			for ri < len(s.records) && s.records[ri].value <= v {
				merged = append(merged, s.records[ri])
				ri++
			}
			idx := len(merged)
			var delta int64
			if idx > 0 && ri < len(s.records) {
				// size of the sequence as it stands mid-insertion:
				// merged records so far plus the not yet consumed tail.
				size := idx + (len(s.records) - ri)
				delta = int64(math.Floor(s.allowableError(int64(idx), size))) - 1
			}
			merged = append(merged, record{value: v, g: 1, delta: delta})
			s.count++
		}
		merged = append(merged, s.records[ri:]...)
		s.records = merged
	}

	s.buffer = s.buffer[:0]
}

// =============================================================================
// Error bound
// =============================================================================

// allowableError returns the maximum tolerable rank width at the given
// rank: the tightest of the per-target candidates, clamped below by
// size+1 when no target applies a smaller bound. The size basis is the
// live record count under PolicySummarySize and the total offered
// count under PolicyStreamCount.
func (s *Summary) allowableError(rank int64, size int) float64 {
	n := float64(size)
	if s.policy == PolicyStreamCount {
		n = float64(s.count)
	}
	r := float64(rank)

	minError := n + 1
	for _, t := range s.targets {
		var width float64
		if r <= t.quantile*n {
			width = t.u * (n - r)
		} else {
			width = t.v * r
		}
		if width < minError {
			minError = width
		}
	}
	return minError
}

// =============================================================================
// Compression
// =============================================================================

// compress merges adjacent record pairs whose combined span stays
// within the allowable error at the pair's position. The scan runs
// left to right once, writing survivors in place; after a merge the
// merged record becomes the candidate for the next pair, so the scan
// continues forward rather than restarting.
func (s *Summary) compress() {
	if len(s.records) < 2 {
		return
	}

	n := len(s.records)
	wi := 0 // index of the last surviving record
	for ri := 1; ri < n; ri++ {
		prev := s.records[wi]
		next := s.records[ri]

		// Position of next while prev is still present, and the live
		// sequence length at this point of the pass.
		idx := int64(wi + 1)
		size := wi + 1 + (n - ri)
		if float64(prev.g+next.g+next.delta) <= s.allowableError(idx, size) {
			s.records[wi] = record{value: next.value, g: prev.g + next.g, delta: next.delta}
		} else {
			wi++
			s.records[wi] = next
		}
	}
	s.records = s.records[:wi+1]
}

// =============================================================================
// Query
// =============================================================================

// Query returns the value at quantile q. Pending values are flushed
// first. It fails with ErrEmpty when no value was ever offered and
// with ErrInvalidFraction when q lies outside (0, 1).
func (s *Summary) Query(q float64) (int64, error) {
	if math.IsNaN(q) || q <= 0 || q >= 1 {
		return 0, ErrInvalidFraction
	}
	s.flush()
	if len(s.records) == 0 {
		return 0, ErrEmpty
	}

	desired := int64(q * float64(s.count))
	bound := float64(desired) + s.allowableError(desired, len(s.records))/2

	rankMin := int64(0)
	prev := s.records[0]
	for i := 1; i < len(s.records); i++ {
		next := s.records[i]
		rankMin += prev.g
		if float64(rankMin+next.g+next.delta) > bound {
			return prev.value, nil
		}
		prev = next
	}

	// Everything up to the last record stayed within the bound.
	return prev.value, nil
}

// =============================================================================
// Merge and clone
// =============================================================================

// Merge absorbs every value other has accepted, replaying each record
// value g times plus any still-buffered values through the receiver's
// own insertion path. Deltas are re-derived against the receiver's
// state rather than copied, so the cost is O(other.count), not
// O(summary size). The receiver and other must share the same target
// set and rank policy; on mismatch the merge fails with
// ErrIncompatible and neither summary is touched. Other itself is
// never modified.
func (s *Summary) Merge(other *Summary) error {
	if !s.compatibleWith(other) {
		return ErrIncompatible
	}

	// Snapshot the donor state: replay flushes can rebuild or reuse
	// the receiver's storage, which is the donor's storage when a
	// summary is merged with itself.
	recs := slices.Clone(other.records)
	pending := slices.Clone(other.buffer)

	for _, r := range recs {
		for i := int64(0); i < r.g; i++ {
			s.Offer(r.value)
		}
	}
	for _, v := range pending {
		s.Offer(v)
	}
	s.flush()
	return nil
}

// compatibleWith reports whether two summaries share the same ordered
// target set and rank policy.
func (s *Summary) compatibleWith(other *Summary) bool {
	if s.policy != other.policy || len(s.targets) != len(other.targets) {
		return false
	}
	for i, t := range s.targets {
		o := other.targets[i]
		if t.quantile != o.quantile || t.epsilon != o.epsilon {
			return false
		}
	}
	return true
}

// Clone returns an independent copy with identical logical state:
// records, pending buffer and count are copied into disjoint storage,
// while the immutable target set is shared. Subsequent mutation of
// either summary never affects the other.
func (s *Summary) Clone() *Summary {
	dst := &Summary{
		targets:   s.targets,
		policy:    s.policy,
		batchSize: s.batchSize,
		records:   slices.Clone(s.records),
		count:     s.count,
	}
	dst.buffer = make([]int64, len(s.buffer), s.batchSize)
	copy(dst.buffer, s.buffer)
	return dst
}

// =============================================================================
// Accessors
// =============================================================================

// Count returns the number of values inserted so far. Buffered values
// join the count at the next flush.
func (s *Summary) Count() int64 {
	return s.count
}

// Len returns the number of records currently held by the summary.
func (s *Summary) Len() int {
	return len(s.records)
}

// Targets returns the summary's configured targets.
func (s *Summary) Targets() []Target {
	out := make([]Target, len(s.targets))
	for i, t := range s.targets {
		out[i] = Target{Quantile: t.quantile, Error: t.epsilon}
	}
	return out
}

// Policy returns the summary's rank policy.
func (s *Summary) Policy() RankPolicy {
	return s.policy
}
