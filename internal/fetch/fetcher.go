package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"golang.org/x/time/rate"

	"github.com/opendvf/dvfload/internal/retry"
)

// Error is a fetch failure. Retryable reports whether the failure is worth
// another attempt: transport errors and 5xx responses are, 4xx are not.
type Error struct {
	Locator   string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Locator, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotFound is wrapped into non-retryable errors when the resource does
// not exist at the source.
var ErrNotFound = errors.New("fetch: resource not found")

// Resource is an open byte stream for one remote resource. Size is the
// declared total size in bytes, or -1 when the source did not report one.
type Resource struct {
	Body io.ReadCloser
	Size int64
}

// Close releases the underlying stream.
func (r *Resource) Close() error { return r.Body.Close() }

// Fetcher opens a readable byte stream for a resource locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Resource, error)
}

// Options configures the HTTP fetcher.
type Options struct {
	// Timeout bounds a single HTTP request from dial to last byte.
	// Default: 30 minutes, sized for multi-hundred-MB yearly exports.
	Timeout time.Duration

	// Retry governs attempts against retryable failures.
	Retry retry.Policy

	// ByteRate throttles reads to this many bytes per second.
	// Zero disables throttling.
	ByteRate int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Minute,
		Retry:   retry.DefaultPolicy(),
	}
}

// Client fetches resources over HTTP with bounded retries.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates an HTTP fetcher with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // payloads are already gzipped
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Fetch opens locator and returns its byte stream positioned at the first
// byte. The caller must close the resource.
func (c *Client) Fetch(ctx context.Context, locator string) (*Resource, error) {
	var res *Resource

	err := c.opts.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return retry.Abort(&Error{Locator: locator, Err: err})
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return &Error{Locator: locator, Retryable: true, Err: err}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			res = &Resource{Body: resp.Body, Size: resp.ContentLength}
			return nil
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return &Error{Locator: locator, Status: resp.StatusCode, Retryable: true}
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return retry.Abort(&Error{Locator: locator, Status: resp.StatusCode, Err: ErrNotFound})
		default:
			resp.Body.Close()
			return retry.Abort(&Error{Locator: locator, Status: resp.StatusCode})
		}
	})
	if err != nil {
		return nil, err
	}

	res.Body = throttle(ctx, res.Body, c.opts.ByteRate)
	return res, nil
}

// BucketFetcher reads resources from an opened gocloud bucket. The locator
// passed to Fetch is the object key within the bucket; the bucket handle is
// owned by the caller and shared across partitions.
type BucketFetcher struct {
	Bucket *blob.Bucket

	// ByteRate throttles reads, same as Options.ByteRate.
	ByteRate int64
}

// Fetch opens the object at key and returns its byte stream.
func (b *BucketFetcher) Fetch(ctx context.Context, key string) (*Resource, error) {
	r, err := b.Bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, &Error{Locator: key, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
		}
		return nil, &Error{Locator: key, Retryable: true, Err: err}
	}

	return &Resource{
		Body: throttle(ctx, r, b.ByteRate),
		Size: r.Size(),
	}, nil
}

// throttle wraps rc in a token-bucket pacer when byteRate is positive.
func throttle(ctx context.Context, rc io.ReadCloser, byteRate int64) io.ReadCloser {
	if byteRate <= 0 {
		return rc
	}
	return &throttledReader{
		rc:      rc,
		limiter: rate.NewLimiter(rate.Limit(byteRate), int(byteRate)),
		ctx:     ctx,
	}
}

type throttledReader struct {
	rc      io.ReadCloser
	limiter *rate.Limiter
	ctx     context.Context
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.rc.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (t *throttledReader) Close() error { return t.rc.Close() }
