package dvfcsv

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"strings"
	"testing"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func newReader(t *testing.T, csvText string) *RecordReader {
	t.Helper()
	d, err := NewDecompressor(bytes.NewReader(gzipBytes(t, csvText)))
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	rr, err := NewRecordReader(d)
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	return rr
}

func TestReadsHeaderAndRecords(t *testing.T) {
	rr := newReader(t, "id_mutation,date_mutation,valeur_fonciere\n2024-1,2024-01-15,250000\n2024-2,2024-02-01,180000\n")

	want := []string{"id_mutation", "date_mutation", "valeur_fonciere"}
	header := rr.Header()
	if len(header) != len(want) {
		t.Fatalf("header length: got %d, want %d", len(header), len(want))
	}
	for i := range want {
		if header[i] != want[i] {
			t.Errorf("header[%d]: got %q, want %q", i, header[i], want[i])
		}
	}

	rec, err := rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[0] != "2024-1" || rec[2] != "250000" {
		t.Errorf("unexpected first record: %v", rec)
	}

	rec, err = rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[0] != "2024-2" {
		t.Errorf("unexpected second record: %v", rec)
	}

	if _, err := rr.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestQuotedFieldsWithDelimiterAndNewline(t *testing.T) {
	rr := newReader(t, "id_mutation,nom_commune\n2024-1,\"Saint-Pierre, Nord\"\n2024-2,\"Deux\nLignes\"\n")

	rec, err := rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[1] != "Saint-Pierre, Nord" {
		t.Errorf("quoted delimiter: got %q", rec[1])
	}

	rec, err = rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[1] != "Deux\nLignes" {
		t.Errorf("quoted newline: got %q", rec[1])
	}
}

func TestMismatchedArityIsCountedNotFatal(t *testing.T) {
	rr := newReader(t, "a,b,c\n1,2,3\nshort,row\n4,5,6\ntoo,many,fields,here\n")

	var rows int
	for {
		_, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows++
	}

	if rows != 2 {
		t.Errorf("expected 2 valid rows, got %d", rows)
	}
	if rr.Anomalies() != 2 {
		t.Errorf("expected 2 anomalies, got %d", rr.Anomalies())
	}
}

func TestEmptyStreamIsAnError(t *testing.T) {
	d, err := NewDecompressor(bytes.NewReader(gzipBytes(t, "")))
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	if _, err := NewRecordReader(d); err == nil {
		t.Fatal("expected error for empty stream")
	}
}

func TestNotGzipFailsWithCorruptStreamError(t *testing.T) {
	_, err := NewDecompressor(strings.NewReader("id_mutation,date_mutation\n"))
	var ce *CorruptStreamError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStreamError, got %v", err)
	}
}

func TestTruncatedGzipFailsWithCorruptStreamError(t *testing.T) {
	data := gzipBytes(t, "a,b\n1,2\n3,4\n5,6\n")
	d, err := NewDecompressor(bytes.NewReader(data[:len(data)-6]))
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}

	_, err = io.ReadAll(d)
	var ce *CorruptStreamError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStreamError, got %v", err)
	}
}
