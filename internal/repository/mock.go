package repository

import (
	"context"
	"time"

	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/domain/outbox"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockMediaFileRepository is a mock implementation of MediaFileRepository
type MockMediaFileRepository struct {
	mock.Mock
}

func NewMockMediaFileRepository() *MockMediaFileRepository {
	return &MockMediaFileRepository{}
}

func (m *MockMediaFileRepository) Create(ctx context.Context, tx DBTX, f *media.MediaFile) (bool, error) {
	args := m.Called(ctx, tx, f)
	return args.Bool(0), args.Error(1)
}

func (m *MockMediaFileRepository) GetByID(ctx context.Context, id int64) (media.MediaFile, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(media.MediaFile), args.Error(1)
}

func (m *MockMediaFileRepository) GetByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error) {
	args := m.Called(ctx, uploadID)
	return args.Get(0).(media.MediaFile), args.Error(1)
}

func (m *MockMediaFileRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]media.MediaFile, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]media.MediaFile), args.Error(1)
}

func (m *MockMediaFileRepository) MarkDeleted(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]outbox.OutboxEvent, error) {
	args := m.Called(ctx, limit, lease)
	return args.Get(0).([]outbox.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errorMsg string, nextAttempt time.Time) error {
	args := m.Called(ctx, id, errorMsg, nextAttempt)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	args := m.Called(ctx, id, errorMsg)
	return args.Error(0)
}

func (m *MockOutboxRepository) RequeueFailed(ctx context.Context, olderThan time.Duration, limit int) (int64, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).(int64), args.Error(1)
}
