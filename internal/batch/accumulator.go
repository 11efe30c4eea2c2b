// Package batch groups cleaned records into bounded batches.
//
// The accumulator enforces the row-level admission policy and never holds
// more than one batch's worth of records, which is what keeps the pipeline's
// memory footprint flat regardless of export size.
package batch

import "github.com/opendvf/dvfload/internal/clean"

// Accumulator collects admitted records and emits them in batches of at most
// the configured size.
type Accumulator struct {
	max     int
	pending []clean.Record

	admitted int64
	rejected map[clean.Reason]int64
}

// New creates an accumulator emitting batches of at most size records.
func New(size int) *Accumulator {
	if size <= 0 {
		size = 10_000
	}
	return &Accumulator{
		max:      size,
		pending:  make([]clean.Record, 0, size),
		rejected: make(map[clean.Reason]int64),
	}
}

// Add offers one record. Ineligible records are counted and dropped. When the
// record fills the batch, the full batch is returned and the accumulator
// starts a fresh one; otherwise Add returns nil.
func (a *Accumulator) Add(rec clean.Record) []clean.Record {
	if reason := rec.Eligibility(); reason != clean.ReasonAdmitted {
		a.rejected[reason]++
		return nil
	}

	a.admitted++
	a.pending = append(a.pending, rec)
	if len(a.pending) < a.max {
		return nil
	}

	full := a.pending
	a.pending = make([]clean.Record, 0, a.max)
	return full
}

// Flush returns the final partial batch, or nil when nothing is pending.
func (a *Accumulator) Flush() []clean.Record {
	if len(a.pending) == 0 {
		return nil
	}
	last := a.pending
	a.pending = nil
	return last
}

// Admitted reports how many records passed the admission policy.
func (a *Accumulator) Admitted() int64 { return a.admitted }

// Rejected reports how many records were dropped, in total.
func (a *Accumulator) Rejected() int64 {
	var n int64
	for _, c := range a.rejected {
		n += c
	}
	return n
}

// RejectedBy reports drop counts per admission reason.
func (a *Accumulator) RejectedBy() map[clean.Reason]int64 {
	out := make(map[clean.Reason]int64, len(a.rejected))
	for k, v := range a.rejected {
		out[k] = v
	}
	return out
}
