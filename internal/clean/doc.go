// Package clean normalizes raw DVF rows into typed records.
//
// Conversion never fails: unparseable values become null fields, and values
// outside their domain bound become null rather than being clamped, so a
// corrupt magnitude cannot skew aggregate statistics. Whether a record is
// eligible for storage is a separate, row-level admission decision exposed
// as [Record.Eligibility].
//
// Header-to-field binding happens once per partition, when the Cleaner is
// built, not per row.
package clean
