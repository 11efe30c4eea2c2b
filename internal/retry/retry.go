// Package retry provides a bounded retry policy with exponential backoff
// and jitter, shared by the fetcher and the store sink.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy defines how many times an operation is attempted and how long to
// wait between attempts. The zero value is not usable; use DefaultPolicy or
// fill in all fields.
type Policy struct {
	// Attempts is the maximum number of attempts, including the first.
	Attempts int

	// Backoff is the initial backoff duration.
	Backoff time.Duration

	// MaxBackoff caps the exponentially growing backoff.
	MaxBackoff time.Duration
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   5,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Permanent wraps an error to tell Do that further attempts are pointless.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Abort marks err as permanent so Do returns it without retrying.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, fn returns
// a permanent error, or ctx is cancelled. The returned error is the last
// error from fn, unwrapped from its Permanent marker if present.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.wait(ctx, attempt-1); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// wait sleeps for an exponentially increasing duration with jitter.
func (p Policy) wait(ctx context.Context, attempt int) error {
	backoff := p.Backoff * time.Duration(1<<uint(attempt-1))
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	// Jitter: 0.5 to 1.5 of backoff.
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
