// Package dispatch delivers notification batches through a rate-limited
// messenger without losing batches on transient failure.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"watchbot/internal/model"
	"watchbot/internal/retry"
)

// ErrRateLimited is a retryable transport failure: back off and resend
// the same batch.
var ErrRateLimited = errors.New("messenger rate limited")

// Messenger delivers one payload to one chat. A failure wrapping
// ErrRateLimited is retried; any other failure is permanent for that
// batch.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Report summarizes one drain pass.
type Report struct {
	Delivered int
	Failed    int
}

// Queue is a throttled delivery queue. Batches drain one at a time in
// enqueue order, so a subscription's parts reach the chat in
// generation order.
type Queue struct {
	messenger Messenger
	limiter   *rate.Limiter
	policy    retry.Policy
	log       *slog.Logger

	mu      sync.Mutex
	pending []model.Batch

	// drainMu serializes whole Drain passes, so a forced check and a
	// scheduled cycle never interleave a subscription's parts.
	drainMu sync.Mutex
}

// New creates a Queue sending at most perSecond messages per second,
// retrying rate-limited sends per policy.
func New(messenger Messenger, perSecond float64, policy retry.Policy, log *slog.Logger) *Queue {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Queue{
		messenger: messenger,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		policy:    policy,
		log:       log,
	}
}

// Enqueue appends batches for delivery on the next drain.
func (q *Queue) Enqueue(batches ...model.Batch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, batches...)
}

// Len returns the number of batches awaiting delivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain sends queued batches until the queue is empty or ctx is
// cancelled. Only one drain pass runs at a time; a concurrent caller
// blocks until the running pass finishes. A batch that exhausts its
// retries is logged and dropped; it never blocks batches behind it.
func (q *Queue) Drain(ctx context.Context) Report {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var rep Report
	for {
		batch, ok := q.pop()
		if !ok {
			return rep
		}
		if err := q.limiter.Wait(ctx); err != nil {
			// Cancelled mid-drain: leave the batch unsent so the
			// caller can decide not to mark its items seen.
			q.requeue(batch)
			return rep
		}

		err := retry.Do(ctx, q.policy,
			func(err error) bool { return errors.Is(err, ErrRateLimited) },
			func() error { return q.messenger.Send(ctx, batch.ChatID, batch.Text) },
		)
		if err != nil {
			rep.Failed++
			q.log.Error("drop undeliverable batch",
				"chat_id", batch.ChatID,
				"seq", batch.Seq,
				"total", batch.Total,
				"error", err,
			)
			continue
		}
		rep.Delivered++
	}
}

func (q *Queue) pop() (model.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return model.Batch{}, false
	}
	batch := q.pending[0]
	q.pending = q.pending[1:]
	return batch, true
}

func (q *Queue) requeue(batch model.Batch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]model.Batch{batch}, q.pending...)
}
