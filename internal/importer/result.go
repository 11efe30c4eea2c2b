package importer

import (
	"time"

	"github.com/opendvf/dvfload/internal/clean"
)

// State is a partition's position in its lifecycle. Transitions are
// monotonic: a partition never re-enters an earlier state.
type State string

const (
	StatePending   State = "pending"
	StateFetching  State = "fetching"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Failure reasons reported on PartitionResult.FailReason.
const (
	ReasonFetch            = "fetch"
	ReasonReadHeader       = "read header"
	ReasonCorruptStream    = "corrupt stream"
	ReasonRead             = "read"
	ReasonAllBatchesFailed = "all batches failed"
	ReasonCancelled        = "cancelled"
)

// PartitionResult is the immutable outcome of one year's import.
type PartitionResult struct {
	Year       int
	State      State
	FailReason string

	// Skipped is set when the year was already recorded in the store and
	// no pipeline ran.
	Skipped bool

	RowsSeen  int64
	Admitted  int64
	Rejected  int64
	Anomalies int64

	// Committed counts rows in successfully committed batches. Inserted
	// counts the subset that were new; the difference collided with rows
	// from an earlier import and was left untouched.
	Committed int64
	Inserted  int64

	BatchesCommitted int64
	BatchesFailed    int64

	RejectedBy map[clean.Reason]int64

	Elapsed time.Duration
}

// RunResult aggregates the outcome of a whole run.
type RunResult struct {
	Partitions []PartitionResult
	Cancelled  bool
}

// ExitCode maps the run outcome to the process exit code: 0 when every
// partition completed or was skipped, 2 when some failed but the run still
// produced results, 1 when every attempted partition failed and nothing
// was committed.
func (r *RunResult) ExitCode() int {
	var failed, succeeded int
	var committed int64
	for _, p := range r.Partitions {
		if p.State == StateFailed {
			failed++
		} else {
			succeeded++
		}
		committed += p.Committed
	}
	if failed == 0 {
		return 0
	}
	if succeeded > 0 || committed > 0 {
		return 2
	}
	return 1
}
