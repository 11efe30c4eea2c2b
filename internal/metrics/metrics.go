package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var (
	// RowsSeen counts parsed data rows per year, before cleaning.
	RowsSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_rows_seen_total",
		Help: "Data rows parsed from the source, before cleaning",
	}, []string{"year"})

	// RowsCommitted counts rows in successfully committed batches.
	RowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_rows_committed_total",
		Help: "Rows in batches committed to the store",
	}, []string{"year"})

	// RowsRejected counts rows dropped by the admission policy.
	RowsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_rows_rejected_total",
		Help: "Rows dropped by the row-level admission policy",
	}, []string{"year", "reason"})

	// ParseAnomalies counts unparseable source rows.
	ParseAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_parse_anomalies_total",
		Help: "Source rows skipped as unparseable",
	}, []string{"year"})

	// BatchesFailed counts batches abandoned after retries.
	BatchesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_batches_failed_total",
		Help: "Batches that failed permanently and were skipped",
	}, []string{"year"})

	// BatchCommitSeconds observes batch commit latency.
	BatchCommitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dvfload_batch_commit_seconds",
		Help:    "Latency of one batch upsert, including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// PartitionsTotal counts partitions by terminal state.
	PartitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvfload_partitions_total",
		Help: "Partitions by terminal state",
	}, []string{"state"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
