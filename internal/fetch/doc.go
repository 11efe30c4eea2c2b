// Package fetch streams the bytes of one compressed remote resource.
//
// The package never materializes a payload in memory: Fetch returns an
// io.ReadCloser positioned at the first byte, plus the declared total size
// when the source reports one. The caller owns the stream and must close it,
// including on early termination.
//
// Two fetchers implement the Fetcher interface:
//
//   - Client handles http:// and https:// locators with a retrying HTTP
//     client. Transport failures and 5xx responses are retried with
//     exponential backoff; 4xx responses fail immediately and are marked
//     non-retryable.
//   - BucketFetcher reads from a gocloud.dev/blob bucket, so yearly
//     exports mirrored into object storage (s3://, gs://, file://, mem://)
//     can be ingested without going through HTTP.
//
// An optional byte-rate limit throttles reads, which keeps a background
// import from saturating the small hosts this tool targets.
package fetch
