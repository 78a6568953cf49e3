package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"watchbot/internal/model"
)

// Gate serializes access to a fetcher that wraps a stateful,
// non-reentrant resource. At most one Fetch runs at a time regardless
// of how many subscriptions are processed in parallel; a caller that
// cannot acquire the gate within the bounded wait fails with
// ErrResourceBusy instead of blocking indefinitely.
type Gate struct {
	inner Fetcher
	sem   *semaphore.Weighted
	wait  time.Duration
}

// NewGate wraps inner with a weight-1 gate. wait bounds how long a
// caller may block for exclusive access.
func NewGate(inner Fetcher, wait time.Duration) *Gate {
	if wait <= 0 {
		wait = time.Minute
	}
	return &Gate{
		inner: inner,
		sem:   semaphore.NewWeighted(1),
		wait:  wait,
	}
}

// Fetch acquires exclusive access, invokes the wrapped fetcher, and
// releases on every exit path.
func (g *Gate) Fetch(ctx context.Context, query string) ([]model.Item, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrResourceBusy
	}
	defer g.sem.Release(1)

	return g.inner.Fetch(ctx, query)
}
