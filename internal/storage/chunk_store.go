package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"sentinal-media/pkg/logger"

	"github.com/google/uuid"
)

// ErrChunkMissing is returned by Assemble when an expected chunk was never stored.
var ErrChunkMissing = errors.New("chunk missing")

const (
	defaultChunkPrefix = "chunks"
	defaultMediaPrefix = "origin"
)

func chunkName(chunkNumber int) string {
	return fmt.Sprintf("chunk_%d", chunkNumber)
}

// finalName derives the assembled object name. It is deterministic per
// upload so a retried assembly overwrites instead of duplicating.
func finalName(uploadID uuid.UUID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return uploadID.String() + "_" + base
}

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// ChunkStore is implemented by LocalChunkStore and S3ChunkStore.
type ChunkStore interface {
	Store(ctx context.Context, uploadID uuid.UUID, chunkNumber int, body io.Reader) (int64, error)
	Assemble(ctx context.Context, uploadID uuid.UUID, chunkNumbers []int, fileName string) (string, error)
	Discard(ctx context.Context, uploadID uuid.UUID) error
	Delete(ctx context.Context, storagePath string) error
}

// Open builds the chunk store for driver. S3 chunk objects are expected to
// be expired by a bucket lifecycle rule, local ones by SweepAbandoned.
func Open(ctx context.Context, driver, localDir string, s3cfg S3Config, l *logger.Logger) (ChunkStore, error) {
	switch driver {
	case DriverLocal, "":
		return NewLocalChunkStore(localDir)
	case DriverS3:
		client, err := NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return NewS3ChunkStore(client, s3cfg, l), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
