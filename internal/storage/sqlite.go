package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"watchbot/internal/model"
	"watchbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSubscription inserts a new subscription and populates its ID and CreatedAt.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (chat_id, name, query, is_active, degraded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ChatID, sub.Name, sub.Query, boolToInt(sub.IsActive), boolToInt(sub.Degraded), now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, name, query, is_active, degraded, last_check_at, created_at
		 FROM subscriptions WHERE id = ?`, id,
	)
	return scanSubscription(row)
}

// ListSubscriptions returns all subscriptions belonging to the given chat.
func (s *SQLite) ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, name, query, is_active, degraded, last_check_at, created_at
		 FROM subscriptions WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListActiveSubscriptions returns the subscriptions eligible for polling:
// active and not parked as degraded.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, name, query, is_active, degraded, last_check_at, created_at
		 FROM subscriptions
		 WHERE is_active = 1 AND degraded = 0
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// CountDegraded returns the number of subscriptions parked after a permanent fetch error.
func (s *SQLite) CountDegraded(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE degraded = 1`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count degraded: %w", err)
	}
	return n, nil
}

// UpdateSubscription persists changes to an existing subscription.
func (s *SQLite) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	var lastCheck *string
	if sub.LastCheckAt != nil {
		v := sub.LastCheckAt.UTC().Format(timeLayout)
		lastCheck = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET name = ?, query = ?, is_active = ?, degraded = ?, last_check_at = ?
		 WHERE id = ?`,
		sub.Name, sub.Query, boolToInt(sub.IsActive), boolToInt(sub.Degraded), lastCheck, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// SetDegraded marks or clears the degraded flag on a subscription.
func (s *SQLite) SetDegraded(ctx context.Context, id int64, degraded bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET degraded = ? WHERE id = ?`,
		boolToInt(degraded), id,
	)
	if err != nil {
		return fmt.Errorf("set degraded: %w", err)
	}
	return nil
}

// UpdateLastCheck records when a subscription was last polled.
func (s *SQLite) UpdateLastCheck(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_check_at = ? WHERE id = ?`,
		t.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update last check: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription and its seen items.
func (s *SQLite) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE subscription_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return tx.Commit()
}

// MarkSeen records that an item has been delivered for a subscription.
// Re-marking an already-seen item is a no-op.
func (s *SQLite) MarkSeen(ctx context.Context, subscriptionID int64, itemID string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (subscription_id, item_id, seen_at) VALUES (?, ?, ?)`,
		subscriptionID, itemID, now,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether an item has already been delivered for a subscription.
func (s *SQLite) IsSeen(ctx context.Context, subscriptionID int64, itemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_items WHERE subscription_id = ? AND item_id = ?`,
		subscriptionID, itemID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// PruneSeenBefore removes seen records older than cutoff and reports how many were dropped.
func (s *SQLite) PruneSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_items WHERE seen_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var isActive, degraded int
	var lastCheck, created sql.NullString
	err := row.Scan(&sub.ID, &sub.ChatID, &sub.Name, &sub.Query, &isActive, &degraded, &lastCheck, &created)
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.IsActive = isActive == 1
	sub.Degraded = degraded == 1
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		sub.LastCheckAt = &t
	}
	if created.Valid {
		sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
