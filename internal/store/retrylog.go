/**
 * @description
 * Persistence for the failed-webhook retry log. This is a narrow collaborator
 * contract: failed deliveries are appended with their raw payload and error,
 * listed for operator-driven replay, and marked resolved. No billing
 * decisions live here.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntryNotFound is returned when a retry log entry does not exist.
var ErrEntryNotFound = errors.New("retry log entry not found")

// FailedWebhook is one logged delivery failure.
type FailedWebhook struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Payload    []byte     `json:"payload"`
	Error      string     `json:"error"`
	ReceivedAt time.Time  `json:"received_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// RetryLog is the pgx-backed failed-webhook repository.
type RetryLog struct {
	db *pgxpool.Pool
}

// NewRetryLog creates a new retry log repository.
func NewRetryLog(db *pgxpool.Pool) *RetryLog {
	return &RetryLog{db: db}
}

// Insert appends a delivery failure.
func (r *RetryLog) Insert(ctx context.Context, source string, payload []byte, failure string, receivedAt time.Time) (string, error) {
	query := `
		INSERT INTO failed_webhooks (source, payload, error, received_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query, source, payload, failure, receivedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert retry log entry: %w", err)
	}
	return id, nil
}

// ListPending returns unresolved failures, oldest first.
func (r *RetryLog) ListPending(ctx context.Context, limit int) ([]FailedWebhook, error) {
	query := `
		SELECT id, source, payload, error, received_at, resolved_at
		FROM failed_webhooks
		WHERE resolved_at IS NULL
		ORDER BY received_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retry log entries: %w", err)
	}
	defer rows.Close()

	var entries []FailedWebhook
	for rows.Next() {
		var entry FailedWebhook
		if err := rows.Scan(&entry.ID, &entry.Source, &entry.Payload, &entry.Error, &entry.ReceivedAt, &entry.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan retry log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkResolved stamps an entry as handled.
func (r *RetryLog) MarkResolved(ctx context.Context, id string, resolvedAt time.Time) error {
	query := `
		UPDATE failed_webhooks
		SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve retry log entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Get fetches a single entry by id.
func (r *RetryLog) Get(ctx context.Context, id string) (*FailedWebhook, error) {
	query := `
		SELECT id, source, payload, error, received_at, resolved_at
		FROM failed_webhooks
		WHERE id = $1`

	var entry FailedWebhook
	err := r.db.QueryRow(ctx, query, id).Scan(&entry.ID, &entry.Source, &entry.Payload, &entry.Error, &entry.ReceivedAt, &entry.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch retry log entry: %w", err)
	}
	return &entry, nil
}
