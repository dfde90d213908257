package repository

import (
	"context"
	"fmt"
	"time"

	"sentinal-media/internal/domain/outbox"

	"github.com/google/uuid"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error {
	nextAttempt := event.NextAttemptAt
	if nextAttempt.IsZero() {
		nextAttempt = event.CreatedAt
	}
	_, err := executor(r.db, tx).ExecContext(ctx, `
        INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, routing_key, payload, status, retry_count, error, created_at, updated_at, processed_at, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		event.RoutingKey,
		string(event.Payload),
		string(event.Status),
		event.RetryCount,
		event.Error,
		event.CreatedAt,
		event.UpdatedAt,
		event.ProcessedAt,
		nextAttempt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]outbox.OutboxEvent, error) {
	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE id IN (
            SELECT id FROM outbox_events
            WHERE (status = $3 AND next_attempt_at <= $2) OR (status = $1 AND updated_at < $4)
            ORDER BY created_at ASC
            LIMIT $5
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, event_type, aggregate_type, aggregate_id, routing_key, payload, status, retry_count, COALESCE(error, ''), created_at, updated_at, processed_at, next_attempt_at
    `, string(outbox.StatusProcessing), now, string(outbox.StatusPending), now.Add(-lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []outbox.OutboxEvent
	for rows.Next() {
		var (
			event   outbox.OutboxEvent
			payload string
			status  string
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.RoutingKey,
			&payload,
			&status,
			&event.RetryCount,
			&event.Error,
			&event.CreatedAt,
			&event.UpdatedAt,
			&event.ProcessedAt,
			&event.NextAttemptAt,
		); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		event.Status = outbox.Status(status)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, processed_at = $2, updated_at = $3, error = NULL
        WHERE id = $4
    `, string(outbox.StatusCompleted), &now, now, id)
	return err
}

// MarkRetry returns the event to PENDING; it is not claimed again before nextAttempt.
func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errorMsg string, nextAttempt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, retry_count = retry_count + 1, error = $2, updated_at = $3, next_attempt_at = $4
        WHERE id = $5
    `, string(outbox.StatusPending), errorMsg, time.Now().UTC(), nextAttempt.UTC(), id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, retry_count = retry_count + 1, error = $2, updated_at = $3
        WHERE id = $4
    `, string(outbox.StatusFailed), errorMsg, time.Now().UTC(), id)
	return err
}

// RequeueFailed puts up to limit events that have sat in FAILED for longer
// than olderThan back to PENDING with a fresh retry budget.
func (r *outboxRepository) RequeueFailed(ctx context.Context, olderThan time.Duration, limit int) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, retry_count = 0, next_attempt_at = $2, updated_at = $2
        WHERE id IN (
            SELECT id FROM outbox_events
            WHERE status = $3 AND updated_at < $4
            ORDER BY updated_at ASC
            LIMIT $5
            FOR UPDATE SKIP LOCKED
        )
    `, string(outbox.StatusPending), now, string(outbox.StatusFailed), now.Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("requeue failed outbox events: %w", err)
	}
	return res.RowsAffected()
}
