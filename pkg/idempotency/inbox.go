// Package idempotency provides the inbox pattern for exactly-once event
// handling. Transition events carry a unique event id; the inbox records
// each id the first time its handler succeeds, and redeliveries of the
// same id are skipped.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HandlerFunc processes one event payload.
type HandlerFunc func(ctx context.Context) error

// Inbox deduplicates event handling by event id.
type Inbox interface {
	// Process runs fn unless eventID has already been processed.
	// Returns true when fn ran, false when the event was a duplicate.
	// A failed fn leaves no record, so a redelivery will retry it.
	Process(ctx context.Context, eventID, handler string, fn HandlerFunc) (bool, error)
}

// PostgresInbox stores processed ids in the notification_inbox table.
type PostgresInbox struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresInbox creates the inbox. ttl bounds how long processed ids
// are retained; redeliveries older than that are assumed impossible.
func NewPostgresInbox(pool *pgxpool.Pool, ttl time.Duration) *PostgresInbox {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &PostgresInbox{pool: pool, ttl: ttl}
}

// Process implements Inbox.
func (i *PostgresInbox) Process(ctx context.Context, eventID, handler string, fn HandlerFunc) (bool, error) {
	var seen bool
	err := i.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM notification_inbox WHERE event_id = $1 AND handler = $2)`,
		eventID, handler,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check inbox: %w", err)
	}
	if seen {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return false, err
	}

	_, err = i.pool.Exec(ctx,
		`INSERT INTO notification_inbox (event_id, handler, processed_at, expires_at)
		 VALUES ($1, $2, NOW(), NOW() + $3::interval)
		 ON CONFLICT (event_id, handler) DO NOTHING`,
		eventID, handler, i.ttl.String(),
	)
	if err != nil {
		return true, fmt.Errorf("record inbox entry: %w", err)
	}
	return true, nil
}

// Cleanup removes expired entries; run it periodically.
func (i *PostgresInbox) Cleanup(ctx context.Context) (int64, error) {
	tag, err := i.pool.Exec(ctx, `DELETE FROM notification_inbox WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MemoryInbox is an in-process Inbox for tests and local runs.
type MemoryInbox struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryInbox creates an empty inbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{seen: make(map[string]struct{})}
}

// Process implements Inbox.
func (i *MemoryInbox) Process(ctx context.Context, eventID, handler string, fn HandlerFunc) (bool, error) {
	key := handler + "/" + eventID
	i.mu.Lock()
	_, dup := i.seen[key]
	i.mu.Unlock()
	if dup {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return false, err
	}

	i.mu.Lock()
	i.seen[key] = struct{}{}
	i.mu.Unlock()
	return true, nil
}
