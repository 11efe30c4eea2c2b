package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/opendvf/dvfload/internal/batch"
	"github.com/opendvf/dvfload/internal/clean"
	"github.com/opendvf/dvfload/internal/dvfcsv"
	"github.com/opendvf/dvfload/internal/fetch"
	"github.com/opendvf/dvfload/internal/metrics"
	"github.com/opendvf/dvfload/internal/progress"
	"github.com/opendvf/dvfload/internal/store"
)

// Sink commits one batch of cleaned records.
type Sink interface {
	UpsertBatch(ctx context.Context, recs []clean.Record) (store.UpsertResult, error)
}

// PartitionOptions configures one year's import.
type PartitionOptions struct {
	// Year is the dataset year, stamped on every record.
	Year int

	// Locator is the resource to fetch, usually built from the URL template.
	Locator string

	// BatchSize caps the number of records per upsert.
	// Default: 10000
	BatchSize int

	// Logger receives structured events. Default: discard.
	Logger *slog.Logger

	// ProgressOutput, when set, receives live progress lines.
	ProgressOutput io.Writer
}

// Partition runs one year's pipeline to a terminal state.
type Partition struct {
	fetcher fetch.Fetcher
	sink    Sink
	opts    PartitionOptions

	state State
}

// NewPartition creates a partition orchestrator for one year.
func NewPartition(fetcher fetch.Fetcher, sink Sink, opts PartitionOptions) *Partition {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10_000
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Partition{
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
		state:   StatePending,
	}
}

// State reports the partition's current lifecycle state.
func (p *Partition) State() State { return p.state }

// Run drives the pipeline and always returns a terminal result, never an
// error: every failure mode is folded into the result's state and reason.
func (p *Partition) Run(ctx context.Context) PartitionResult {
	start := time.Now()
	year := strconv.Itoa(p.opts.Year)
	log := p.opts.Logger.With("year", p.opts.Year)

	res := PartitionResult{Year: p.opts.Year}
	defer func() {
		res.Elapsed = time.Since(start)
		metrics.PartitionsTotal.WithLabelValues(string(res.State)).Inc()
	}()

	var reporter *progress.Reporter
	if p.opts.ProgressOutput != nil {
		reporter = progress.NewReporter(progress.Options{
			Year:    p.opts.Year,
			Locator: p.opts.Locator,
			Output:  p.opts.ProgressOutput,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	p.state = StateFetching
	resource, err := p.fetcher.Fetch(ctx, p.opts.Locator)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(&res, ReasonCancelled, err, log)
		}
		return p.fail(&res, ReasonFetch, err, log)
	}
	defer resource.Close()

	var body io.Reader = resource.Body
	if reporter != nil {
		body = &countingReader{r: body, count: reporter.BytesFetched}
	}

	dec, err := dvfcsv.NewDecompressor(body)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(&res, ReasonCancelled, err, log)
		}
		return p.fail(&res, ReasonCorruptStream, err, log)
	}
	defer dec.Close()

	rr, err := dvfcsv.NewRecordReader(dec)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(&res, ReasonCancelled, err, log)
		}
		var corrupt *dvfcsv.CorruptStreamError
		if errors.As(err, &corrupt) {
			return p.fail(&res, ReasonCorruptStream, err, log)
		}
		return p.fail(&res, ReasonReadHeader, err, log)
	}

	p.state = StateStreaming
	log.Info("streaming", "locator", p.opts.Locator, "size", resource.Size, "columns", len(rr.Header()))

	cleaner := clean.NewCleaner(rr.Header(), p.opts.Year)
	acc := batch.New(p.opts.BatchSize)

	var cancelled bool
	var streamErr error

	for {
		fields, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}

		res.RowsSeen++
		metrics.RowsSeen.WithLabelValues(year).Inc()
		if reporter != nil {
			reporter.RowsSeen(1)
		}

		if full := acc.Add(cleaner.Clean(fields)); full != nil {
			p.commit(ctx, full, &res, year, reporter, log)

			// Cancellation is honored only here, between batches, so a
			// commit in flight always runs to completion.
			if ctx.Err() != nil {
				cancelled = true
				break
			}
		}
	}

	if streamErr == nil && !cancelled {
		if final := acc.Flush(); final != nil {
			p.commit(ctx, final, &res, year, reporter, log)
		}
	}

	res.Admitted = acc.Admitted()
	res.Rejected = acc.Rejected()
	res.RejectedBy = acc.RejectedBy()
	res.Anomalies = rr.Anomalies()

	for reason, n := range res.RejectedBy {
		metrics.RowsRejected.WithLabelValues(year, string(reason)).Add(float64(n))
	}
	if res.Anomalies > 0 {
		metrics.ParseAnomalies.WithLabelValues(year).Add(float64(res.Anomalies))
	}
	if reporter != nil {
		reporter.Anomalies(res.Anomalies)
	}

	switch {
	case streamErr != nil:
		// A cancelled context tears down the fetch body, so cancellation
		// usually surfaces as a read error before the batch-boundary poll
		// sees it.
		if ctx.Err() != nil {
			return p.fail(&res, ReasonCancelled, streamErr, log)
		}
		var corrupt *dvfcsv.CorruptStreamError
		if errors.As(streamErr, &corrupt) {
			return p.fail(&res, ReasonCorruptStream, streamErr, log)
		}
		return p.fail(&res, ReasonRead, streamErr, log)
	case cancelled:
		return p.fail(&res, ReasonCancelled, ctx.Err(), log)
	case res.BatchesCommitted == 0 && res.Admitted > 0:
		return p.fail(&res, ReasonAllBatchesFailed, nil, log)
	}

	p.state = StateCompleted
	res.State = StateCompleted
	log.Info("completed",
		"rows_seen", res.RowsSeen,
		"committed", res.Committed,
		"inserted", res.Inserted,
		"rejected", res.Rejected,
		"anomalies", res.Anomalies,
		"batches_failed", res.BatchesFailed,
	)
	return res
}

// commit applies one batch through the sink. The sink call gets a context
// detached from cancellation so an already started commit finishes; batch
// failures are absorbed and counted, never fatal to the partition.
func (p *Partition) commit(ctx context.Context, recs []clean.Record, res *PartitionResult, year string, reporter *progress.Reporter, log *slog.Logger) {
	start := time.Now()
	out, err := p.sink.UpsertBatch(context.WithoutCancel(ctx), recs)
	metrics.BatchCommitSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		res.BatchesFailed++
		metrics.BatchesFailed.WithLabelValues(year).Inc()
		log.Warn("batch failed", "rows", len(recs), "error", err)
		return
	}

	res.BatchesCommitted++
	res.Committed += int64(len(recs))
	res.Inserted += out.Affected
	metrics.RowsCommitted.WithLabelValues(year).Add(float64(len(recs)))
	if reporter != nil {
		reporter.BatchCommitted(int64(len(recs)))
	}
}

func (p *Partition) fail(res *PartitionResult, reason string, err error, log *slog.Logger) PartitionResult {
	p.state = StateFailed
	res.State = StateFailed
	res.FailReason = reason
	if err != nil {
		log.Error("partition failed", "reason", reason, "error", err)
	} else {
		log.Error("partition failed", "reason", reason)
	}
	return *res
}

// countingReader forwards reads and reports byte counts.
type countingReader struct {
	r     io.Reader
	count func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.count(int64(n))
	}
	return n, err
}
