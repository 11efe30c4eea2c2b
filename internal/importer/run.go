package importer

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/opendvf/dvfload/internal/fetch"
	"github.com/opendvf/dvfload/internal/store"
)

// StatusSink is the store surface the runner needs: batch commits plus the
// aggregate per-year status used for skip-if-already-imported.
type StatusSink interface {
	Sink
	ImportStatus(ctx context.Context) (map[int]store.YearStatus, error)
}

// RunnerOptions configures a whole run.
type RunnerOptions struct {
	// Years to import. Processed in ascending order regardless of input order.
	Years []int

	// URLTemplate builds each year's locator; "{year}" is substituted.
	URLTemplate string

	// BatchSize caps the number of records per upsert.
	BatchSize int

	// Force re-imports years already recorded in the store.
	Force bool

	// Logger receives structured events. Default: discard.
	Logger *slog.Logger

	// ProgressOutput, when set, receives live progress lines.
	ProgressOutput io.Writer
}

// Runner sequences partitions, one at a time, isolating their failures.
type Runner struct {
	fetcher fetch.Fetcher
	sink    StatusSink
	opts    RunnerOptions
}

// NewRunner creates a run orchestrator.
func NewRunner(fetcher fetch.Fetcher, sink StatusSink, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{fetcher: fetcher, sink: sink, opts: opts}
}

// Run imports every configured year and aggregates the outcome. A partition
// failure never aborts the run; cancellation stops it at the next partition
// boundary (or the next batch boundary within the active partition).
func (r *Runner) Run(ctx context.Context) *RunResult {
	years := make([]int, len(r.opts.Years))
	copy(years, r.opts.Years)
	sort.Ints(years)

	result := &RunResult{}

	for _, year := range years {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		if !r.opts.Force {
			if skipped, records := r.alreadyImported(ctx, year); skipped {
				r.opts.Logger.Info("already imported, skipping", "year", year, "records", records)
				result.Partitions = append(result.Partitions, PartitionResult{
					Year:    year,
					State:   StateCompleted,
					Skipped: true,
				})
				continue
			}
		}

		part := NewPartition(r.fetcher, r.sink, PartitionOptions{
			Year:           year,
			Locator:        Locator(r.opts.URLTemplate, year),
			BatchSize:      r.opts.BatchSize,
			Logger:         r.opts.Logger,
			ProgressOutput: r.opts.ProgressOutput,
		})

		pr := part.Run(ctx)
		result.Partitions = append(result.Partitions, pr)

		if pr.FailReason == ReasonCancelled {
			result.Cancelled = true
			break
		}
	}

	return result
}

// alreadyImported reports whether the store records rows for year. A status
// read failure is logged and treated as not imported; the partition itself
// will surface a real connectivity problem.
func (r *Runner) alreadyImported(ctx context.Context, year int) (bool, int64) {
	status, err := r.sink.ImportStatus(ctx)
	if err != nil {
		r.opts.Logger.Warn("import status unavailable", "year", year, "error", err)
		return false, 0
	}
	ys, ok := status[year]
	return ok && ys.Records > 0, ys.Records
}

// Locator substitutes the year into the resource URL template.
func Locator(template string, year int) string {
	return strings.ReplaceAll(template, "{year}", strconv.Itoa(year))
}
