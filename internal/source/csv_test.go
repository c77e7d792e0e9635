package source

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/streamest/internal/stream"
)

func writeCSV(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func readAll(t *testing.T, src Source) []stream.Record {
	t.Helper()
	var recs []stream.Record
	for {
		rec, err := src.Next()
		if err == io.EOF {
			return recs
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		recs = append(recs, rec)
	}
}

func TestCSVWithHeader(t *testing.T) {
	path := writeCSV(t, "timestamp,key,value\n1000,alpha,1.5\n2000,beta,-3\n")
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	recs := readAll(t, src)
	want := []stream.Record{
		{TimestampMs: 1000, Key: "alpha", Value: 1.5},
		{TimestampMs: 2000, Key: "beta", Value: -3},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("record[%d] = %+v, want %+v", i, recs[i], want[i])
		}
	}

	// EOF is sticky.
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("Next after EOF: %v, want io.EOF", err)
	}
}

func TestCSVWithoutHeader(t *testing.T) {
	path := writeCSV(t, "100,k,2\n200,k,4\n")
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	recs := readAll(t, src)
	if len(recs) != 2 || recs[0].TimestampMs != 100 {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestCSVBadValue(t *testing.T) {
	path := writeCSV(t, "timestamp,key,value\n1,a,1\n2,a,oops\n")
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	_, err = src.Next()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "row 3") {
		t.Fatalf("error %q does not name the failing row", err)
	}
}

func TestCSVBadTimestampMidFile(t *testing.T) {
	path := writeCSV(t, "timestamp,key,value\n1,a,1\nxx,a,2\n")
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := src.Next(); err == nil || !strings.Contains(err.Error(), "invalid timestamp") {
		t.Fatalf("got %v, want invalid timestamp error", err)
	}
}

func TestCSVFieldCountMismatch(t *testing.T) {
	path := writeCSV(t, "1,a,1\n2,a\n")
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := src.Next(); !errors.Is(err, csv.ErrFieldCount) {
		t.Fatalf("got %v, want csv.ErrFieldCount", err)
	}
}

func TestCSVMissingFile(t *testing.T) {
	if _, err := OpenCSV(filepath.Join(t.TempDir(), "absent.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want os.ErrNotExist", err)
	}
}
