package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xtxerr/streamest/internal/stream"
)

// CSVSource streams records from a timestamp,key,value file. A header
// row is detected by its non-numeric first field and skipped.
type CSVSource struct {
	path string
	file *os.File
	r    *csv.Reader
	row  int
}

var _ Source = (*CSVSource)(nil)

// OpenCSV opens a CSV record stream.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true
	return &CSVSource{path: path, file: f, r: r}, nil
}

func (s *CSVSource) Next() (stream.Record, error) {
	for {
		fields, err := s.r.Read()
		if err == io.EOF {
			return stream.Record{}, io.EOF
		}
		if err != nil {
			return stream.Record{}, fmt.Errorf("source: %s: %w", s.path, err)
		}
		s.row++

		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			if s.row == 1 {
				continue // header
			}
			return stream.Record{}, fmt.Errorf("source: %s row %d: invalid timestamp %q", s.path, s.row, fields[0])
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return stream.Record{}, fmt.Errorf("source: %s row %d: invalid value %q", s.path, s.row, fields[2])
		}
		return stream.Record{TimestampMs: ts, Key: fields[1], Value: value}, nil
	}
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}
