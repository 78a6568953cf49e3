// Package scheduler drives periodic polling cycles over the active
// subscriptions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"watchbot/internal/delta"
	"watchbot/internal/dispatch"
	"watchbot/internal/fetch"
	"watchbot/internal/format"
	"watchbot/internal/model"
	"watchbot/internal/retry"
	"watchbot/internal/storage"
)

// ErrCheckInFlight is returned when a subscription is polled while a
// prior poll for it has not finished.
var ErrCheckInFlight = errors.New("subscription check already in flight")

// failureThreshold is how many consecutive total-failure cycles are
// tolerated before the cycle interval starts widening.
const failureThreshold = 3

// CycleStatus is a snapshot of the scheduler's last cycle.
type CycleStatus struct {
	LastRunAt      time.Time
	ActiveCount    int
	LastErrorCount int
	DegradedCount  int
}

// Scheduler visits every active subscription once per cycle, isolating
// per-subscription failures so one broken query never starves the rest.
type Scheduler struct {
	store    storage.Storage
	fetcher  fetch.Fetcher
	queue    *dispatch.Queue
	detector *delta.Detector
	log      *slog.Logger

	interval    time.Duration
	maxInterval time.Duration
	maxChars    int
	maxItems    int
	fetchPolicy retry.Policy
	retention   time.Duration
	subTimeout  time.Duration

	mu        sync.Mutex
	inflight  map[int64]struct{}
	status    CycleStatus
	failures  int
	lastPrune time.Time
}

// New creates a Scheduler. The fetcher is expected to already be
// gate-wrapped; the scheduler never bypasses it.
func New(store storage.Storage, fetcher fetch.Fetcher, queue *dispatch.Queue, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		fetcher:     fetcher,
		queue:       queue,
		detector:    delta.New(store),
		log:         log,
		interval:    15 * time.Minute,
		maxInterval: 4 * time.Hour,
		maxChars:    4000,
		maxItems:    10,
		fetchPolicy: retry.Policy{
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxAttempts:     3,
		},
		retention:  90 * 24 * time.Hour,
		subTimeout: 5 * time.Minute,
		inflight:   make(map[int64]struct{}),
		lastPrune:  time.Now(),
	}
}

// SetInterval overrides the default 15-minute cycle interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// SetMaxInterval caps how far consecutive-failure widening can stretch
// the cycle interval.
func (s *Scheduler) SetMaxInterval(d time.Duration) {
	s.maxInterval = d
}

// SetBatchLimits overrides the per-batch size and item bounds.
func (s *Scheduler) SetBatchLimits(maxChars, maxItems int) {
	s.maxChars = maxChars
	s.maxItems = maxItems
}

// SetFetchPolicy overrides the transient-fetch retry policy.
func (s *Scheduler) SetFetchPolicy(p retry.Policy) {
	s.fetchPolicy = p
}

// SetSeenRetention overrides how long delivered-item records are kept.
func (s *Scheduler) SetSeenRetention(d time.Duration) {
	s.retention = d
}

// Run starts the cycle loop, blocking until ctx is cancelled. The loop
// never exits on errors; after repeated total-failure cycles it only
// widens its interval, up to the configured cap.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	for {
		timer := time.NewTimer(s.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.maybePrune(ctx)
			s.runCycle(ctx)
		}
	}
}

// Status returns a snapshot of the last cycle's outcome.
func (s *Scheduler) Status() CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TriggerCheck runs a single subscription synchronously, outside the
// cycle. A successful forced check un-parks a degraded subscription.
func (s *Scheduler) TriggerCheck(ctx context.Context, id int64) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if !sub.IsActive {
		return fmt.Errorf("subscription #%d is paused", id)
	}
	return s.processSubscription(ctx, *sub)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		s.log.Error("list active subscriptions", "error", err)
		s.recordCycle(ctx, 0, 0, true)
		return
	}

	var processed, failed int
	for _, sub := range subs {
		// Cooperative stop: checked between subscriptions, never
		// mid-subscription, so in-flight work drains before shutdown.
		if ctx.Err() != nil {
			break
		}
		processed++
		if err := s.processSubscription(ctx, sub); err != nil {
			failed++
			s.log.Warn("subscription check failed",
				"subscription_id", sub.ID, "name", sub.Name, "error", err)
		}
	}

	s.recordCycle(ctx, len(subs), failed, processed > 0 && failed == processed)
}

func (s *Scheduler) processSubscription(ctx context.Context, sub model.Subscription) error {
	if !s.begin(sub.ID) {
		return ErrCheckInFlight
	}
	defer s.end(sub.ID)
	defer s.updateLastCheck(sub.ID)

	// A stop signal is honored between subscriptions, never inside
	// one: the in-flight subscription runs to completion on its own
	// bounded context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.subTimeout)
	defer cancel()

	s.log.Debug("checking subscription", "subscription_id", sub.ID, "name", sub.Name)

	var items []model.Item
	err := retry.Do(ctx, s.fetchPolicy, fetch.IsTransient, func() error {
		var ferr error
		items, ferr = s.fetcher.Fetch(ctx, sub.Query)
		return ferr
	})
	switch {
	case err == nil:
	case errors.Is(err, fetch.ErrResourceBusy):
		s.log.Debug("fetch gate busy, retrying next cycle", "subscription_id", sub.ID)
		return err
	case fetch.IsPermanent(err):
		if derr := s.store.SetDegraded(ctx, sub.ID, true); derr != nil {
			s.log.Error("set degraded", "subscription_id", sub.ID, "error", derr)
		}
		s.log.Warn("subscription degraded until its query changes",
			"subscription_id", sub.ID, "name", sub.Name, "error", err)
		return err
	default:
		return err
	}

	if sub.Degraded {
		if derr := s.store.SetDegraded(ctx, sub.ID, false); derr != nil {
			s.log.Error("clear degraded", "subscription_id", sub.ID, "error", derr)
		}
	}

	fresh, err := s.detector.Detect(ctx, sub.ID, items)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}

	batches := format.Batches(sub, fresh, s.maxChars, s.maxItems)
	s.queue.Enqueue(batches...)
	rep := s.queue.Drain(ctx)
	if ctx.Err() != nil {
		// Undrained batches stay unmarked and redeliver next cycle.
		return ctx.Err()
	}

	// Seen-marking happens only after the batches were handed off:
	// a crash before this point redelivers, never silently drops.
	if err := s.detector.CommitSeen(ctx, sub.ID, fresh); err != nil {
		return err
	}

	s.log.Info("sent notifications",
		"subscription_id", sub.ID,
		"name", sub.Name,
		"items", len(fresh),
		"batches", rep.Delivered,
		"failed_batches", rep.Failed,
	)
	return nil
}

func (s *Scheduler) begin(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) end(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Scheduler) updateLastCheck(id int64) {
	// Fresh context: last-checked is recorded even when the cycle's
	// context was cancelled mid-subscription.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateLastCheck(ctx, id, time.Now().UTC()); err != nil {
		s.log.Error("update last check", "subscription_id", id, "error", err)
	}
}

func (s *Scheduler) recordCycle(ctx context.Context, active, failed int, totalFailure bool) {
	degraded, err := s.store.CountDegraded(ctx)
	if err != nil {
		s.log.Error("count degraded", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = CycleStatus{
		LastRunAt:      time.Now().UTC(),
		ActiveCount:    active,
		LastErrorCount: failed,
		DegradedCount:  degraded,
	}
	if totalFailure {
		s.failures++
		if s.failures >= failureThreshold {
			s.log.Warn("consecutive cycle failures, widening interval",
				"failures", s.failures, "next_interval", retry.Next(s.interval, s.maxInterval, failureThreshold, s.failures))
		}
	} else {
		s.failures = 0
	}
}

func (s *Scheduler) nextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retry.Next(s.interval, s.maxInterval, failureThreshold, s.failures)
}

func (s *Scheduler) maybePrune(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	s.mu.Lock()
	due := time.Since(s.lastPrune) >= 24*time.Hour
	if due {
		s.lastPrune = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}

	n, err := s.store.PruneSeenBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		s.log.Error("prune seen items", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("pruned seen items", "count", n)
	}
}
