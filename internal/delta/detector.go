// Package delta computes which fetched items are new for a subscription.
package delta

import (
	"context"
	"fmt"

	"watchbot/internal/model"
	"watchbot/internal/storage"
)

// Detector filters fetched items against a subscription's seen set.
//
// Detect is read-only; callers mark items seen with CommitSeen only
// after the corresponding notification has been handed to dispatch, so
// a failure between the two redelivers rather than silently drops
// (at-least-once).
type Detector struct {
	store storage.Storage
}

// New creates a Detector backed by store.
func New(store storage.Storage) *Detector {
	return &Detector{store: store}
}

// Detect returns the items not yet seen for the subscription,
// preserving fetch order. Duplicate identifiers within the input are
// collapsed to their first occurrence before the seen check.
func (d *Detector) Detect(ctx context.Context, subscriptionID int64, items []model.Item) ([]model.Item, error) {
	inBatch := make(map[string]struct{}, len(items))
	var fresh []model.Item
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := inBatch[item.ID]; dup {
			continue
		}
		inBatch[item.ID] = struct{}{}

		seen, err := d.store.IsSeen(ctx, subscriptionID, item.ID)
		if err != nil {
			return nil, fmt.Errorf("check seen %q: %w", item.ID, err)
		}
		if seen {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, nil
}

// CommitSeen durably records items as delivered. Marking is idempotent,
// so re-committing after a partial failure is safe.
func (d *Detector) CommitSeen(ctx context.Context, subscriptionID int64, items []model.Item) error {
	for _, item := range items {
		if err := d.store.MarkSeen(ctx, subscriptionID, item.ID); err != nil {
			return fmt.Errorf("mark seen %q: %w", item.ID, err)
		}
	}
	return nil
}
