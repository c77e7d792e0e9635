package sink

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleResults() []ResultRow {
	return []ResultRow{
		{
			Key:         "key-0",
			WindowStart: 0,
			WindowEnd:   10000,
			RecordCount: 1000,
			Metric:      "q0.5",
			Estimate:    502,
		},
		{
			Key:         "key-0",
			WindowStart: 0,
			WindowEnd:   10000,
			RecordCount: 1000,
			Metric:      "q0.99",
			Estimate:    991,
		},
		{
			Key:         "key-1",
			WindowStart: 500,
			WindowEnd:   10500,
			RecordCount: 400,
			Metric:      "distinct",
			Estimate:    87,
		},
	}
}

func TestResultWriterBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}

	if err := w.Write(sampleResults()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file should exist: %v", err)
	}
	if stat.Size() == 0 {
		t.Error("file should not be empty")
	}
}

func TestResultWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.parquet")

	rows := sampleResults()
	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.RowCount() != int64(len(rows)) {
		t.Errorf("row count = %d, want %d", w.RowCount(), len(rows))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewResultReader(path)
	if err != nil {
		t.Fatalf("NewResultReader: %v", err)
	}
	defer r.Close()

	read, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(read) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(read))
	}
	for i := range rows {
		if read[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, read[i], rows[i])
		}
	}
}

func TestLatencyWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.parquet")

	rows := []LatencyRow{
		{Seq: 0, TimestampMs: 1000, LatencyNs: 1500},
		{Seq: 100, TimestampMs: 1100, LatencyNs: 900},
		{Seq: 200, TimestampMs: 1200, LatencyNs: 2100},
	}

	w, err := NewLatencyWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewLatencyWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewLatencyReader(path)
	if err != nil {
		t.Fatalf("NewLatencyReader: %v", err)
	}
	defer r.Close()

	read, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(read) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(read))
	}
	for i := range rows {
		if read[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, read[i], rows[i])
		}
	}
}

func TestLargeWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.parquet")

	opts := DefaultOptions()
	opts.RowGroupSize = 1000 // force several row groups

	w, err := NewResultWriter(path, opts)
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}

	rows := make([]ResultRow, 10000)
	for i := range rows {
		rows[i] = ResultRow{
			Key:         "key-0",
			WindowStart: int64(i) * 500,
			WindowEnd:   int64(i)*500 + 10000,
			RecordCount: int64(i),
			Metric:      "q0.5",
			Estimate:    float64(i % 100),
		}
	}

	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewResultReader(path)
	if err != nil {
		t.Fatalf("NewResultReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 10000 {
		t.Errorf("expected 10000 rows, got %d", r.NumRows())
	}
	read, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(read) != 10000 {
		t.Errorf("expected 10000 rows, got %d", len(read))
	}
}

func TestCompressionTypes(t *testing.T) {
	compressions := []struct {
		name string
		ct   CompressionType
	}{
		{"none", CompressionNone},
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
	}

	for _, tc := range compressions {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.parquet")

			opts := DefaultOptions()
			opts.Compression = tc.ct

			w, err := NewResultWriter(path, opts)
			if err != nil {
				t.Fatalf("NewResultWriter: %v", err)
			}
			if err := w.Write(sampleResults()[:1]); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := NewResultReader(path)
			if err != nil {
				t.Fatalf("NewResultReader: %v", err)
			}
			defer r.Close()

			read, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if len(read) != 1 {
				t.Errorf("expected 1 row, got %d", len(read))
			}
		})
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input    string
		expected CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"uncompressed", CompressionNone},
		{"", CompressionSnappy},
		{"invalid", CompressionSnappy}, // default
	}

	for _, tt := range tests {
		if got := ParseCompressionType(tt.input); got != tt.expected {
			t.Errorf("ParseCompressionType(%q): expected %d, got %d", tt.input, tt.expected, got)
		}
	}
}

func TestEmptyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}

	if err := w.Write(nil); err != nil {
		t.Errorf("nil write should succeed: %v", err)
	}
	if err := w.Write([]ResultRow{}); err != nil {
		t.Errorf("empty write should succeed: %v", err)
	}
	if w.RowCount() != 0 {
		t.Errorf("expected 0 rows, got %d", w.RowCount())
	}

	w.Close()
}

func TestWriteToClosedWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}
	w.Close()

	if err := w.Write(sampleResults()); err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}

	lw, err := NewLatencyWriter(filepath.Join(t.TempDir(), "lat.parquet"), DefaultOptions())
	if err != nil {
		t.Fatalf("NewLatencyWriter: %v", err)
	}
	lw.Close()

	if err := lw.Write([]LatencyRow{{Seq: 1}}); err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestDoubleCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestResultFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewResultWriter: %v", err)
	}

	rows := make([]ResultRow, 100)
	for i := range rows {
		rows[i] = ResultRow{Key: "k", WindowStart: int64(i), Metric: "q0.5", Estimate: float64(i)}
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	info, err := ResultFileInfo(path)
	if err != nil {
		t.Fatalf("ResultFileInfo: %v", err)
	}
	if info.NumRows != 100 {
		t.Errorf("expected 100 rows, got %d", info.NumRows)
	}
	if info.Size <= 0 {
		t.Error("expected positive size")
	}
}

func BenchmarkResultWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		b.Fatalf("NewResultWriter: %v", err)
	}
	defer w.Close()

	row := sampleResults()[:1]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Write(row)
	}
}

func BenchmarkResultWriteBatch1000(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.parquet")

	w, err := NewResultWriter(path, DefaultOptions())
	if err != nil {
		b.Fatalf("NewResultWriter: %v", err)
	}
	defer w.Close()

	batch := make([]ResultRow, 1000)
	for i := range batch {
		batch[i] = ResultRow{
			Key:         "key-0",
			WindowStart: int64(i) * 500,
			WindowEnd:   int64(i)*500 + 10000,
			RecordCount: int64(i),
			Metric:      "q0.5",
			Estimate:    float64(i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Write(batch)
	}
}
