package storage_test

import (
	"context"
	"testing"

	"sentinal-media/internal/storage"
	"sentinal-media/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverLocal, t.TempDir(), storage.S3Config{}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalChunkStore{}, store)

	_, err = storage.Open(ctx, storage.DriverS3, "", storage.S3Config{}, logger.NewNop())
	assert.Error(t, err, "bucket and region are required")

	_, err = storage.Open(ctx, "ftp", "", storage.S3Config{}, logger.NewNop())
	assert.Error(t, err)
}
