package repository

import (
	"context"
	"time"

	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/domain/outbox"

	"github.com/google/uuid"
)

type MediaFileRepository interface {
	// Create inserts f unless a record for the same upload exists. On conflict
	// f is filled from the existing row and created is false.
	Create(ctx context.Context, tx DBTX, f *media.MediaFile) (created bool, err error)
	GetByID(ctx context.Context, id int64) (media.MediaFile, error)
	GetByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error)
	// ListPendingOlderThan skips files whose processing message has not been
	// delivered yet; the relay still owns those.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]media.MediaFile, error)
	MarkDeleted(ctx context.Context, id int64) error
}

type OutboxRepository interface {
	Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error
	// ClaimPending moves up to limit due PENDING events, plus PROCESSING
	// events whose lease expired, to PROCESSING and returns them.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]outbox.OutboxEvent, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errorMsg string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error
	RequeueFailed(ctx context.Context, olderThan time.Duration, limit int) (int64, error)
}
