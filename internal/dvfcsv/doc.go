// Package dvfcsv turns one gzip-compressed DVF export into a lazy record
// sequence.
//
// The export is a comma-separated file whose first line names the columns.
// Decompression is incremental: nothing beyond the inflate window and one
// record is buffered. The sequence is single-pass and non-restartable, which
// matches the one-shot nature of a partition import.
//
// Rows whose field count does not match the header, and rows the csv parser
// cannot make sense of, are skipped and counted as anomalies rather than
// failing the stream. A malformed gzip container is fatal and surfaces as
// [CorruptStreamError].
package dvfcsv
