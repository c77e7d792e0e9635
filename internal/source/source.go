// Package source produces the record streams the runner consumes:
// CSV files for replayed traces and seeded synthetic generators for
// benchmarks.
package source

import "github.com/xtxerr/streamest/internal/stream"

// Source yields one record per call and io.EOF at end of stream.
// Sources holding OS resources also implement io.Closer.
type Source interface {
	Next() (stream.Record, error)
}
