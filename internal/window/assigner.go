// Package window implements keyed tumbling and sliding event-time
// windows over pane-decomposed partial aggregates.
//
// A sliding window of size s and slide d is split into panes of length
// gcd(s, d). Every record lands in exactly one pane, each pane's
// partial is built once, and a closing window combines clones of its
// panes' partials. Overlapping windows therefore never fold the same
// record twice.
package window

import (
	"fmt"
	"slices"
)

// Assigner maps event timestamps to panes and panes to the windows
// that cover them. All positions are milliseconds since the epoch;
// windows are half-open [start, start+size).
type Assigner struct {
	size  int64
	slide int64
	pane  int64
}

// NewAssigner builds an assigner for windows of the given size and
// slide in milliseconds. size == slide yields tumbling windows.
func NewAssigner(sizeMs, slideMs int64) (*Assigner, error) {
	if sizeMs <= 0 {
		return nil, fmt.Errorf("window: size must be positive, got %dms", sizeMs)
	}
	if slideMs <= 0 {
		return nil, fmt.Errorf("window: slide must be positive, got %dms", slideMs)
	}
	if slideMs > sizeMs {
		return nil, fmt.Errorf("window: slide %dms exceeds size %dms", slideMs, sizeMs)
	}
	return &Assigner{
		size:  sizeMs,
		slide: slideMs,
		pane:  gcd(sizeMs, slideMs),
	}, nil
}

// Size returns the window length in milliseconds.
func (a *Assigner) Size() int64 { return a.size }

// Slide returns the window slide in milliseconds.
func (a *Assigner) Slide() int64 { return a.slide }

// PaneLength returns the pane length in milliseconds.
func (a *Assigner) PaneLength() int64 { return a.pane }

// Sliding reports whether windows overlap.
func (a *Assigner) Sliding() bool { return a.slide != a.size }

// PaneStart returns the start of the pane containing ts.
func (a *Assigner) PaneStart(ts int64) int64 {
	return floorDiv(ts, a.pane) * a.pane
}

// SlideStart returns the latest window boundary at or before ts.
// Window ends only ever land on these boundaries, so a watermark that
// stays within one slide interval cannot close anything new.
func (a *Assigner) SlideStart(ts int64) int64 {
	return floorDiv(ts, a.slide) * a.slide
}

// WindowsForPane returns the starts of every window covering the pane,
// ascending. Window boundaries are multiples of the slide and the pane
// length divides both size and slide, so each covering window contains
// the pane entirely.
func (a *Assigner) WindowsForPane(paneStart int64) []int64 {
	last := floorDiv(paneStart, a.slide) * a.slide
	var starts []int64
	for w := last; w > paneStart-a.size; w -= a.slide {
		starts = append(starts, w)
	}
	slices.Reverse(starts)
	return starts
}

// WindowsFor returns the starts of every window containing ts,
// ascending.
func (a *Assigner) WindowsFor(ts int64) []int64 {
	return a.WindowsForPane(a.PaneStart(ts))
}

// lastWindowEnd returns the end of the latest window covering the
// pane. Once the watermark passes it the pane is unreachable.
func (a *Assigner) lastWindowEnd(paneStart int64) int64 {
	return floorDiv(paneStart, a.slide)*a.slide + a.size
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// floorDiv divides rounding toward negative infinity, keeping pane
// arithmetic correct for timestamps before the epoch.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
