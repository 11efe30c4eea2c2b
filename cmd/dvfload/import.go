package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/opendvf/dvfload/internal/config"
	"github.com/opendvf/dvfload/internal/fetch"
	"github.com/opendvf/dvfload/internal/importer"
	"github.com/opendvf/dvfload/internal/metrics"
	"github.com/opendvf/dvfload/internal/progress"
)

// runImport streams the configured years' exports into the store, one
// partition at a time.
func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)

	sf := registerStoreFlags(fs)
	urlTemplate := fs.String("url-template", "", "Source URL template with a {year} placeholder")
	startYear := fs.Int("start-year", 0, "First year to import")
	endYear := fs.Int("end-year", 0, "Last year to import")
	years := fs.String("years", "", "Explicit comma-separated year list (overrides the range)")
	batchSize := fs.Int("batch-size", 0, "Records per upsert batch")
	byteRate := fs.String("byte-rate", "", "Download throttle, e.g. 10MB per second")
	metricsAddr := fs.String("metrics", "", "Expose Prometheus metrics on this address")
	force := fs.Bool("force", false, "Re-import years already recorded in the store")
	quiet := fs.Bool("quiet", false, "Suppress progress output")
	retryAttempts := fs.Int("retry-attempts", 0, "Max retry attempts for fetches and batch commits")
	retryBackoff := fs.Duration("retry-backoff", 0, "Initial retry backoff")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dvfload import [options]

Fetch each year's gzip-compressed export, clean and batch its rows, and
upsert them into PostgreSQL. Years already present in the store are
skipped unless -force is given.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitFailure
	}

	overrides := config.Config{
		URLTemplate: *urlTemplate,
		StartYear:   *startYear,
		EndYear:     *endYear,
		BatchSize:   *batchSize,
		MetricsAddr: *metricsAddr,
		Force:       *force,
	}
	overrides.Retry.Attempts = *retryAttempts
	overrides.Retry.Backoff = *retryBackoff
	if *years != "" {
		list, err := config.ParseYears(*years)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -years: %v\n", err)
			return ExitFailure
		}
		overrides.Years = list
	}
	if *byteRate != "" {
		rate, err := progress.ParseBytes(*byteRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -byte-rate: %v\n", err)
			return ExitFailure
		}
		overrides.ByteRate = rate
	}

	cfg, err := sf.loadConfig(overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	if *quiet {
		cfg.Progress = false
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := sf.logger()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to store: %v\n", err)
		return ExitFailure
	}
	defer st.Close()

	// The table must exist before the first batch; creation is idempotent.
	if err := st.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing schema: %v\n", err)
		return ExitFailure
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	fetcher, locatorTemplate, closeFetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening source: %v\n", err)
		return ExitFailure
	}
	defer closeFetcher()

	var progressOut io.Writer
	if cfg.Progress {
		progressOut = os.Stderr
	}

	runner := importer.NewRunner(fetcher, st, importer.RunnerOptions{
		Years:          cfg.YearList(),
		URLTemplate:    locatorTemplate,
		BatchSize:      cfg.BatchSize,
		Force:          cfg.Force,
		Logger:         logger,
		ProgressOutput: progressOut,
	})

	result := runner.Run(ctx)
	printSummary(result)

	return result.ExitCode()
}

// newFetcher selects the source transport from the URL template's scheme.
// http and https go through the retrying HTTP client; any other scheme is
// opened as a gocloud bucket, with the template's path serving as the
// per-year object key. The returned template is what gets the {year}
// substitution: the full URL for HTTP, the object key for buckets.
func newFetcher(ctx context.Context, cfg config.Config) (fetch.Fetcher, string, func(), error) {
	u, err := url.Parse(cfg.URLTemplate)
	if err != nil {
		return nil, "", nil, fmt.Errorf("parse url template: %w", err)
	}

	if u.Scheme == "" || u.Scheme == "http" || u.Scheme == "https" {
		client := fetch.NewClient(fetch.Options{
			Retry:    retryPolicy(cfg.Retry),
			ByteRate: cfg.ByteRate,
		})
		return client, cfg.URLTemplate, func() {}, nil
	}

	keyTemplate := strings.TrimPrefix(u.Path, "/")
	u.Path = ""

	bucket, err := blob.OpenBucket(ctx, u.String())
	if err != nil {
		return nil, "", nil, fmt.Errorf("open bucket %s: %w", u.String(), err)
	}

	fetcher := &fetch.BucketFetcher{Bucket: bucket, ByteRate: cfg.ByteRate}
	return fetcher, keyTemplate, func() { bucket.Close() }, nil
}

// printSummary writes the end-of-run per-year table to stderr.
func printSummary(result *importer.RunResult) {
	fmt.Fprintln(os.Stderr, "\n[dvfload] Summary:")

	tw := tabwriter.NewWriter(os.Stderr, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  YEAR\tSTATE\tSEEN\tCOMMITTED\tINSERTED\tREJECTED\tANOMALIES\tELAPSED")
	for _, p := range result.Partitions {
		state := string(p.State)
		if p.Skipped {
			state = "skipped"
		} else if p.State == importer.StateFailed {
			state = fmt.Sprintf("failed (%s)", p.FailReason)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			p.Year, state, p.RowsSeen, p.Committed, p.Inserted,
			p.Rejected, p.Anomalies, p.Elapsed.Round(time.Second))
	}
	tw.Flush()

	if result.Cancelled {
		fmt.Fprintln(os.Stderr, "[dvfload] Run cancelled; re-run to resume remaining years")
	}
}
