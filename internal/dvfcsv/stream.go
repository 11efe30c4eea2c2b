package dvfcsv

import (
	"compress/flate"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CorruptStreamError reports a malformed gzip container. It is fatal to the
// partition being imported and is never retried.
type CorruptStreamError struct {
	Err error
}

func (e *CorruptStreamError) Error() string {
	return fmt.Sprintf("corrupt compressed stream: %v", e.Err)
}

func (e *CorruptStreamError) Unwrap() error { return e.Err }

// Decompressor incrementally inflates a gzip byte stream. It buffers no more
// than the inflate window beyond what the caller has consumed.
type Decompressor struct {
	gz *gzip.Reader
}

// NewDecompressor wraps r. It fails with CorruptStreamError when r does not
// start with a valid gzip header.
func NewDecompressor(r io.Reader) (*Decompressor, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &CorruptStreamError{Err: err}
	}
	return &Decompressor{gz: gz}, nil
}

// Read yields decompressed bytes. Corruption detected by the inflate layer is
// reported as CorruptStreamError; errors from the underlying stream pass
// through unchanged.
func (d *Decompressor) Read(p []byte) (int, error) {
	n, err := d.gz.Read(p)
	if err != nil && err != io.EOF && isCorruption(err) {
		err = &CorruptStreamError{Err: err}
	}
	return n, err
}

// Close releases the gzip state. It does not close the underlying stream,
// which belongs to whoever fetched it.
func (d *Decompressor) Close() error {
	return d.gz.Close()
}

func isCorruption(err error) bool {
	var corrupt flate.CorruptInputError
	var internal flate.InternalError
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt) ||
		errors.As(err, &internal)
}

// RecordReader splits decompressed text into a header and data records,
// respecting quoted fields that may contain the delimiter or line breaks.
type RecordReader struct {
	cr        *csv.Reader
	header    []string
	anomalies int64
}

// NewRecordReader consumes the first record of r as the header. An empty
// stream is an error.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("dvfcsv: empty stream, no header")
	}
	if err != nil {
		return nil, fmt.Errorf("dvfcsv: read header: %w", err)
	}

	// The header slice is reused by the csv reader; keep a copy.
	h := make([]string, len(header))
	copy(h, header)

	return &RecordReader{cr: cr, header: h}, nil
}

// Header returns the column names from the first line.
func (rr *RecordReader) Header() []string { return rr.header }

// Next returns the fields of the next data row, or io.EOF when the stream is
// exhausted. Rows with a mismatched field count or unparseable quoting are
// skipped and counted, not returned.
//
// The returned slice is reused by the next call; the caller must consume it
// before calling Next again.
func (rr *RecordReader) Next() ([]string, error) {
	for {
		rec, err := rr.cr.Read()
		if err == nil {
			return rec, nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}

		var pe *csv.ParseError
		if errors.As(err, &pe) {
			rr.anomalies++
			continue
		}
		return nil, err
	}
}

// Anomalies reports how many rows were skipped as unparseable so far.
func (rr *RecordReader) Anomalies() int64 { return rr.anomalies }
