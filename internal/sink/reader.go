package sink

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ResultReader reads window results from a Parquet file.
type ResultReader struct {
	file   *os.File
	reader *parquet.GenericReader[ResultRow]
	path   string
}

// NewResultReader creates a new window-result Parquet reader.
func NewResultReader(path string) (*ResultReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &ResultReader{
		file:   f,
		reader: parquet.NewGenericReader[ResultRow](f, parquet.ReadBufferSize(1024*1024)),
		path:   path,
	}, nil
}

// Read reads up to n rows from the file.
func (r *ResultReader) Read(n int) ([]ResultRow, error) {
	rows := make([]ResultRow, n)
	count, err := r.reader.Read(rows)
	if count == 0 && err != nil {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads every row in the file.
func (r *ResultReader) ReadAll() ([]ResultRow, error) {
	rows := make([]ResultRow, r.reader.NumRows())
	n, err := r.reader.Read(rows)
	if n < len(rows) && err != nil {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *ResultReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *ResultReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *ResultReader) Path() string {
	return r.path
}

// LatencyReader reads latency measurements from a Parquet file.
type LatencyReader struct {
	file   *os.File
	reader *parquet.GenericReader[LatencyRow]
	path   string
}

// NewLatencyReader creates a new latency-measurement Parquet reader.
func NewLatencyReader(path string) (*LatencyReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &LatencyReader{
		file:   f,
		reader: parquet.NewGenericReader[LatencyRow](f, parquet.ReadBufferSize(1024*1024)),
		path:   path,
	}, nil
}

// ReadAll reads every row in the file.
func (r *LatencyReader) ReadAll() ([]LatencyRow, error) {
	rows := make([]LatencyRow, r.reader.NumRows())
	n, err := r.reader.Read(rows)
	if n < len(rows) && err != nil {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *LatencyReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *LatencyReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *LatencyReader) Path() string {
	return r.path
}

// FileInfo holds basic information about a Parquet result file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// ResultFileInfo returns size and row count for a result file.
func ResultFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[ResultRow](f)
	defer reader.Close()

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: reader.NumRows(),
	}, nil
}
