package importer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/opendvf/dvfload/internal/clean"
	"github.com/opendvf/dvfload/internal/fetch"
	"github.com/opendvf/dvfload/internal/store"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeFetcher serves a fixed payload, or a fixed error.
type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator string) (*fetch.Resource, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Resource{
		Body: io.NopCloser(bytes.NewReader(f.data)),
		Size: int64(len(f.data)),
	}, nil
}

// fakeSink records batches and can fail the first call or every call.
type fakeSink struct {
	batches   [][]clean.Record
	calls     int
	failFirst bool
	failAll   bool

	// onCommit runs after each successful commit, before returning.
	onCommit func()
}

func (f *fakeSink) UpsertBatch(ctx context.Context, recs []clean.Record) (store.UpsertResult, error) {
	f.calls++
	if f.failAll || (f.failFirst && f.calls == 1) {
		return store.UpsertResult{}, &store.SinkError{Err: errors.New("column mismatch")}
	}
	cp := make([]clean.Record, len(recs))
	copy(cp, recs)
	f.batches = append(f.batches, cp)
	if f.onCommit != nil {
		f.onCommit()
	}
	n := int64(len(recs))
	return store.UpsertResult{Submitted: n, Affected: n}, nil
}

const testHeader = "id_mutation,date_mutation,valeur_fonciere,code_postal\n"

func testRows(n int) string {
	var sb strings.Builder
	sb.WriteString(testHeader)
	for i := 0; i < n; i++ {
		sb.WriteString("2023-")
		sb.WriteByte(byte('0' + i%10))
		sb.WriteString(",2023-01-15,250000,75001\n")
	}
	return sb.String()
}

func TestPartitionCommitsAllRows(t *testing.T) {
	fetcher := &fakeFetcher{data: gzipBytes(t, testRows(5))}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{
		Year:      2023,
		Locator:   "https://example.com/2023/full.csv.gz",
		BatchSize: 2,
	})

	res := part.Run(context.Background())

	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s (reason %q)", res.State, res.FailReason)
	}
	if part.State() != StateCompleted {
		t.Errorf("orchestrator state = %s, want completed", part.State())
	}
	if res.RowsSeen != 5 {
		t.Errorf("rows seen = %d, want 5", res.RowsSeen)
	}
	if res.Committed != 5 {
		t.Errorf("committed = %d, want 5", res.Committed)
	}
	if res.Inserted != 5 {
		t.Errorf("inserted = %d, want 5", res.Inserted)
	}
	if len(sink.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(sink.batches))
	}
	for i, want := range []int{2, 2, 1} {
		if len(sink.batches[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(sink.batches[i]), want)
		}
	}
	// Batches commit in file order.
	if sink.batches[0][0].IDMutation != "2023-0" {
		t.Errorf("first committed row = %q, want 2023-0", sink.batches[0][0].IDMutation)
	}
}

func TestPartitionRejectsIneligibleRows(t *testing.T) {
	body := testHeader +
		"2023-1,2023-01-15,100000,75001\n" +
		",2023-01-16,100000,75001\n" + // no id
		"2023-3,not-a-date,100000,75001\n" + // bad date
		"2023-4,2023-01-18,100000,75001\n"
	fetcher := &fakeFetcher{data: gzipBytes(t, body)}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023, BatchSize: 10})
	res := part.Run(context.Background())

	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s (reason %q)", res.State, res.FailReason)
	}
	if res.RowsSeen != 4 {
		t.Errorf("rows seen = %d, want 4", res.RowsSeen)
	}
	if res.Committed != 2 {
		t.Errorf("committed = %d, want 2", res.Committed)
	}
	if res.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", res.Rejected)
	}
	if res.RejectedBy[clean.ReasonMissingID] != 1 {
		t.Errorf("missing id rejections = %d, want 1", res.RejectedBy[clean.ReasonMissingID])
	}
	if res.RejectedBy[clean.ReasonMissingDate] != 1 {
		t.Errorf("missing date rejections = %d, want 1", res.RejectedBy[clean.ReasonMissingDate])
	}
}

func TestPartitionFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: &fetch.Error{
		Locator: "https://example.com/2023/full.csv.gz",
		Status:  404,
		Err:     fetch.ErrNotFound,
	}}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023})
	res := part.Run(context.Background())

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailReason != ReasonFetch {
		t.Errorf("reason = %q, want %q", res.FailReason, ReasonFetch)
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times, want 0", sink.calls)
	}
}

func TestPartitionCorruptStream(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("this is not gzip")}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023})
	res := part.Run(context.Background())

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailReason != ReasonCorruptStream {
		t.Errorf("reason = %q, want %q", res.FailReason, ReasonCorruptStream)
	}
}

func TestPartitionEmptyButValid(t *testing.T) {
	// Header only, plus rows that all fail admission: zero eligible rows
	// is completed, not failed.
	body := testHeader + ",2023-01-15,100000,75001\n"
	fetcher := &fakeFetcher{data: gzipBytes(t, body)}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023})
	res := part.Run(context.Background())

	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s (reason %q)", res.State, res.FailReason)
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times, want 0", sink.calls)
	}
	if res.Committed != 0 {
		t.Errorf("committed = %d, want 0", res.Committed)
	}
}

func TestPartitionAllBatchesFailed(t *testing.T) {
	fetcher := &fakeFetcher{data: gzipBytes(t, testRows(4))}
	sink := &fakeSink{failAll: true}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023, BatchSize: 2})
	res := part.Run(context.Background())

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailReason != ReasonAllBatchesFailed {
		t.Errorf("reason = %q, want %q", res.FailReason, ReasonAllBatchesFailed)
	}
	if res.BatchesFailed != 2 {
		t.Errorf("batches failed = %d, want 2", res.BatchesFailed)
	}
	if res.Committed != 0 {
		t.Errorf("committed = %d, want 0", res.Committed)
	}
}

func TestPartitionSurvivesBatchFailure(t *testing.T) {
	fetcher := &fakeFetcher{data: gzipBytes(t, testRows(5))}
	sink := &fakeSink{failFirst: true}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023, BatchSize: 2})
	res := part.Run(context.Background())

	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s (reason %q)", res.State, res.FailReason)
	}
	if res.BatchesFailed != 1 {
		t.Errorf("batches failed = %d, want 1", res.BatchesFailed)
	}
	if res.Committed != 3 {
		t.Errorf("committed = %d, want 3", res.Committed)
	}
}

// interruptedBody serves its payload, then cancels the context and fails
// the next read with the cancellation error, the way an HTTP response body
// behaves once its request context is torn down.
type interruptedBody struct {
	ctx    context.Context
	cancel context.CancelFunc
	r      *bytes.Reader
}

func (b *interruptedBody) Read(p []byte) (int, error) {
	if b.r.Len() == 0 {
		b.cancel()
		return 0, b.ctx.Err()
	}
	return b.r.Read(p)
}

func (b *interruptedBody) Close() error { return nil }

type interruptedFetcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	data   []byte
}

func (f *interruptedFetcher) Fetch(ctx context.Context, locator string) (*fetch.Resource, error) {
	return &fetch.Resource{
		Body: &interruptedBody{ctx: f.ctx, cancel: f.cancel, r: bytes.NewReader(f.data)},
		Size: int64(len(f.data)),
	}, nil
}

func TestPartitionCancelledMidReadReportsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Truncate so the stream needs one more read, which delivers the
	// cancellation error instead of bytes.
	data := gzipBytes(t, testRows(6))
	fetcher := &interruptedFetcher{ctx: ctx, cancel: cancel, data: data[:len(data)-1]}
	sink := &fakeSink{}

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023, BatchSize: 100})
	res := part.Run(ctx)

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailReason != ReasonCancelled {
		t.Errorf("reason = %q, want %q", res.FailReason, ReasonCancelled)
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times, want 0", sink.calls)
	}
}

func TestPartitionCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{data: gzipBytes(t, testRows(10))}
	sink := &fakeSink{onCommit: cancel} // cancel arrives during the first commit

	part := NewPartition(fetcher, sink, PartitionOptions{Year: 2023, BatchSize: 3})
	res := part.Run(ctx)

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailReason != ReasonCancelled {
		t.Errorf("reason = %q, want %q", res.FailReason, ReasonCancelled)
	}
	// The in-flight batch committed fully; nothing after it did.
	if res.Committed != 3 {
		t.Errorf("committed = %d, want 3", res.Committed)
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
}
