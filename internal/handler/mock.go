package handler

import (
	"context"

	"sentinal-media/internal/commands"
	"sentinal-media/internal/services"

	"github.com/stretchr/testify/mock"
)

// MockUploadCoordinator is a mock implementation of UploadCoordinator
type MockUploadCoordinator struct {
	mock.Mock
}

func NewMockUploadCoordinator() *MockUploadCoordinator {
	return &MockUploadCoordinator{}
}

func (m *MockUploadCoordinator) StartUpload(ctx context.Context, cmd commands.StartUploadCommand) (services.StartUploadResult, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(services.StartUploadResult), args.Error(1)
}

func (m *MockUploadCoordinator) ReceiveChunk(ctx context.Context, cmd commands.ReceiveChunkCommand) (services.ChunkReceipt, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(services.ChunkReceipt), args.Error(1)
}

func (m *MockUploadCoordinator) CompleteUpload(ctx context.Context, cmd commands.CompleteUploadCommand) (services.CompleteUploadResult, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(services.CompleteUploadResult), args.Error(1)
}

func (m *MockUploadCoordinator) GetUploadStatus(ctx context.Context, cmd commands.GetUploadStatusCommand) (services.UploadStatus, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(services.UploadStatus), args.Error(1)
}
