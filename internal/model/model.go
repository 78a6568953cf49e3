// Package model defines the domain types used across the application.
package model

import "time"

// Subscription represents a saved search a user is notified about.
type Subscription struct {
	ID          int64
	ChatID      int64
	Name        string
	Query       string
	IsActive    bool
	Degraded    bool
	LastCheckAt *time.Time
	CreatedAt   time.Time
}

// Item is a single search result produced by a fetcher.
//
// The ID is an opaque string taken from the source as-is. Some sources
// embed thousands-separated numbers in their identifiers ("59,500"), so
// IDs are compared and stored as strings and never parsed numerically.
type Item struct {
	ID      string
	Title   string
	URL     string
	Summary string
}

// SeenItem records a search result that has already been delivered.
type SeenItem struct {
	SubscriptionID int64
	ItemID         string
	SeenAt         time.Time
}

// Batch is one transport-sized chunk of a notification set.
// Seq and Total carry the "part X of Y" position within the set.
type Batch struct {
	ChatID int64
	Text   string
	Seq    int
	Total  int
}
