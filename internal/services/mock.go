package services

import (
	"context"
	"io"
	"time"

	"sentinal-media/internal/domain/media"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockChunkStore is a mock implementation of ChunkStore
type MockChunkStore struct {
	mock.Mock
}

func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{}
}

func (m *MockChunkStore) Store(ctx context.Context, uploadID uuid.UUID, chunkNumber int, body io.Reader) (int64, error) {
	args := m.Called(ctx, uploadID, chunkNumber, body)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkStore) Assemble(ctx context.Context, uploadID uuid.UUID, chunkNumbers []int, fileName string) (string, error) {
	args := m.Called(ctx, uploadID, chunkNumbers, fileName)
	return args.String(0), args.Error(1)
}

func (m *MockChunkStore) Discard(ctx context.Context, uploadID uuid.UUID) error {
	args := m.Called(ctx, uploadID)
	return args.Error(0)
}

// MockMediaRecorder is a mock implementation of MediaRecorder
type MockMediaRecorder struct {
	mock.Mock
}

func NewMockMediaRecorder() *MockMediaRecorder {
	return &MockMediaRecorder{}
}

func (m *MockMediaRecorder) Record(ctx context.Context, f *media.MediaFile) (bool, error) {
	args := m.Called(ctx, f)
	return args.Bool(0), args.Error(1)
}

func (m *MockMediaRecorder) FindByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error) {
	args := m.Called(ctx, uploadID)
	return args.Get(0).(media.MediaFile), args.Error(1)
}

// MockObjectDeleter is a mock implementation of ObjectDeleter
type MockObjectDeleter struct {
	mock.Mock
}

func NewMockObjectDeleter() *MockObjectDeleter {
	return &MockObjectDeleter{}
}

func (m *MockObjectDeleter) Delete(ctx context.Context, storagePath string) error {
	args := m.Called(ctx, storagePath)
	return args.Error(0)
}

// MockChunkSweeper is a mock implementation of AbandonedChunkSweeper
type MockChunkSweeper struct {
	mock.Mock
}

func NewMockChunkSweeper() *MockChunkSweeper {
	return &MockChunkSweeper{}
}

func (m *MockChunkSweeper) SweepAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}
