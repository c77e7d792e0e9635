// Package sink persists window results and latency measurements as
// Parquet files, the format the query service reads back with DuckDB.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Options configures the Parquet writers.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int

	// PageSize is the target page size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionSnappy CompressionType = iota
	CompressionZstd
	CompressionLZ4
	CompressionGzip
	CompressionNone
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionSnappy,
		RowGroupSize: 100000,
		PageSize:     1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string, defaulting to
// snappy.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "uncompressed":
		return CompressionNone
	default:
		return CompressionSnappy
	}
}

// codec returns the parquet-go compression codec.
func (ct CompressionType) codec() compress.Codec {
	switch ct {
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	case CompressionNone:
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}

// ResultRow is one estimate of one closed window. Aggregates that
// produce several figures per window (quantile fractions, stats
// fields) emit one row per figure, discriminated by Metric.
type ResultRow struct {
	Key         string  `parquet:"key,zstd"`
	WindowStart int64   `parquet:"window_start"`
	WindowEnd   int64   `parquet:"window_end"`
	RecordCount int64   `parquet:"record_count"`
	Metric      string  `parquet:"metric,zstd"`
	Estimate    float64 `parquet:"estimate"`
}

// LatencyRow is one sampled per-record processing latency.
type LatencyRow struct {
	Seq         int64 `parquet:"seq"`
	TimestampMs int64 `parquet:"timestamp_ms"`
	LatencyNs   int64 `parquet:"latency_ns"`
}

func writerOptions(opts Options) []parquet.WriterOption {
	wopts := []parquet.WriterOption{
		parquet.Compression(opts.Compression.codec()),
	}
	if opts.RowGroupSize > 0 {
		wopts = append(wopts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}
	if opts.PageSize > 0 {
		wopts = append(wopts, parquet.PageBufferSize(opts.PageSize))
	}
	return wopts
}

// ResultWriter writes window results to a Parquet file.
type ResultWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ResultRow]
	rowCount int64
	closed   bool
}

// NewResultWriter creates a new window-result Parquet writer.
func NewResultWriter(path string, opts Options) (*ResultWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &ResultWriter{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[ResultRow](f, writerOptions(opts)...),
	}, nil
}

// Write appends result rows to the Parquet file.
func (w *ResultWriter) Write(rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the writer.
func (w *ResultWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *ResultWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *ResultWriter) Path() string {
	return w.path
}

// LatencyWriter writes latency measurements to a Parquet file.
type LatencyWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[LatencyRow]
	rowCount int64
	closed   bool
}

// NewLatencyWriter creates a new latency-measurement Parquet writer.
func NewLatencyWriter(path string, opts Options) (*LatencyWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &LatencyWriter{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[LatencyRow](f, writerOptions(opts)...),
	}, nil
}

// Write appends latency rows to the Parquet file.
func (w *LatencyWriter) Write(rows []LatencyRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the writer.
func (w *LatencyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *LatencyWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *LatencyWriter) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
