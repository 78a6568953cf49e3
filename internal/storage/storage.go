// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"watchbot/internal/model"
)

// Storage is the interface for all persistence operations.
//
// MarkSeen is an idempotent upsert: inserting an existing
// (subscription, item) pair is a no-op, never an error. Together with
// the uniqueness constraints on (chat_id, query) and
// (subscription_id, item_id) this makes concurrent writers safe
// without application-level locking.
type Storage interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
	CountDegraded(ctx context.Context) (int, error)
	UpdateSubscription(ctx context.Context, sub *model.Subscription) error
	SetDegraded(ctx context.Context, id int64, degraded bool) error
	UpdateLastCheck(ctx context.Context, id int64, t time.Time) error
	DeleteSubscription(ctx context.Context, id int64) error

	MarkSeen(ctx context.Context, subscriptionID int64, itemID string) error
	IsSeen(ctx context.Context, subscriptionID int64, itemID string) (bool, error)
	PruneSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
