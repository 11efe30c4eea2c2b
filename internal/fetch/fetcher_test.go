package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/opendvf/dvfload/internal/retry"
)

func testOptions() Options {
	return Options{
		Timeout: 10 * time.Second,
		Retry: retry.Policy{
			Attempts:   3,
			Backoff:    time.Millisecond,
			MaxBackoff: 5 * time.Millisecond,
		},
	}
}

func TestFetchStreamsBody(t *testing.T) {
	payload := []byte("header\nrow1\nrow2\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	res, err := NewClient(testOptions()).Fetch(context.Background(), srv.URL+"/full.csv.gz")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	if res.Size != int64(len(payload)) {
		t.Errorf("expected size %d, got %d", len(payload), res.Size)
	}

	got, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("body mismatch: got %q", got)
	}
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(testOptions()).Fetch(context.Background(), srv.URL+"/missing.csv.gz")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.Retryable {
		t.Error("404 must not be retryable")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := NewClient(testOptions()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	got, _ := io.ReadAll(res.Body)
	if string(got) != "ok" {
		t.Errorf("expected ok after retries, got %q", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestFetchServerErrorsExhaustAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(testOptions()).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !fe.Retryable {
		t.Error("5xx must be retryable")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected attempts exhausted at 3 requests, got %d", n)
	}
}

func TestBucketFetcher(t *testing.T) {
	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	payload := []byte("id_mutation,date_mutation\n2024-1,2024-01-15\n")
	if err := bucket.WriteAll(ctx, "2024/full.csv.gz", payload, nil); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	f := &BucketFetcher{Bucket: bucket}

	res, err := f.Fetch(ctx, "2024/full.csv.gz")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	if res.Size != int64(len(payload)) {
		t.Errorf("expected size %d, got %d", len(payload), res.Size)
	}

	got, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("body mismatch: got %q", got)
	}
}

func TestBucketFetcherMissingKey(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	f := &BucketFetcher{Bucket: bucket}

	_, err := f.Fetch(context.Background(), "2030/full.csv.gz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testOptions()).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
