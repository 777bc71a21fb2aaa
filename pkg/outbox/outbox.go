// Package outbox persists row-level change events in the same transaction as
// the entity write, then a dispatcher publishes them to the changes exchange.
// The outbox id doubles as the per-table commit sequence feed subscribers see.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Event is one pending change notification.
type Event struct {
	ID          int64
	Table       string
	Op          string
	RowID       int64
	Payload     json.RawMessage
	Status      string
	RetryCount  int
	NextRetryAt *time.Time
	CreatedAt   time.Time
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEvent records the event inside the caller's transaction so the
// change notification commits atomically with the entity write.
func (r *Repository) InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO change_events (table_name, op, row_id, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		event.Table,
		event.Op,
		event.RowID,
		event.Payload,
		event.Status,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert change event: %w", err)
	}

	return nil
}

// GetPendingEvents returns unsent events in commit order. An event is held
// back while an earlier event of the same table is waiting on a retry delay
// or parked as failed: publishing past it would reorder the table's feed.
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	query := `
		SELECT id, table_name, op, row_id, payload, status, retry_count, next_retry_at, created_at
		FROM change_events e
		WHERE e.status = 'pending'
		AND (e.next_retry_at IS NULL OR e.next_retry_at <= NOW())
		AND NOT EXISTS (
			SELECT 1 FROM change_events b
			WHERE b.table_name = e.table_name
			AND b.id < e.id
			AND b.status <> 'sent'
			AND (b.status = 'failed' OR b.next_retry_at > NOW())
		)
		ORDER BY e.id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		err := rows.Scan(
			&e.ID,
			&e.Table,
			&e.Op,
			&e.RowID,
			&e.Payload,
			&e.Status,
			&e.RetryCount,
			&e.NextRetryAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

// MarkAsSent marks the event published.
func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	query := `
		UPDATE change_events
		SET status = 'sent'
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	return nil
}

// MarkAsFailed bumps the retry count and schedules the next attempt, parking
// the event as failed once maxRetries is reached.
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	var retryCount int
	err := r.db.QueryRow(ctx, `
		SELECT retry_count FROM change_events WHERE id = $1
	`, eventID).Scan(&retryCount)

	if err != nil {
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++

	var status string
	var nextRetryAt *time.Time
	if retryCount >= maxRetries {
		status = "failed"
	} else {
		status = "pending"
		nextRetry := time.Now().Add(time.Duration(retryCount) * 5 * time.Second)
		nextRetryAt = &nextRetry
	}

	query := `
		UPDATE change_events
		SET status = $1, retry_count = $2, next_retry_at = $3
		WHERE id = $4
	`

	_, err = r.db.Exec(ctx, query, status, retryCount, nextRetryAt, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// ReplayEvent resets a parked event to pending.
func (r *Repository) ReplayEvent(ctx context.Context, eventID int64) error {
	query := `
		UPDATE change_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to replay event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("event not found")
	}

	return nil
}
