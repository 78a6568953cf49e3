// Package retry provides the single backoff policy shared by every
// external-call boundary: fetches, dispatch sends, and the scheduler's
// own cycle widening all parameterize the same exponential shape.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts bounds total tries including the first. Zero means
	// retry until the context is cancelled.
	MaxAttempts uint64
}

// Do runs fn, retrying per the policy as long as retryable reports the
// returned error as retryable. Non-retryable errors are returned
// immediately; exhaustion returns the last error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}

	var b backoff.BackOff = backoff.WithContext(bo, ctx)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.Retry(op, b)
}

// Next returns the widened interval after n consecutive failures past
// threshold, doubling from base up to max.
func Next(base, max time.Duration, threshold, failures int) time.Duration {
	if failures < threshold {
		return base
	}
	d := base
	for i := threshold; i <= failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
