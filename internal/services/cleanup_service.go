package services

import (
	"context"
	"errors"
	"time"

	"sentinal-media/internal/metrics"
	"sentinal-media/internal/repository"
	sentinal_errors "sentinal-media/pkg/errors"
	"sentinal-media/pkg/logger"

	"go.uber.org/zap"
)

// ObjectDeleter removes an assembled file by its storage path.
type ObjectDeleter interface {
	Delete(ctx context.Context, storagePath string) error
}

// AbandonedChunkSweeper is implemented by chunk stores that must clean up
// chunks of sessions that expired without completing.
type AbandonedChunkSweeper interface {
	SweepAbandoned(ctx context.Context, olderThan time.Duration) (int, error)
}

type CleanupConfig struct {
	Interval   time.Duration
	PendingAge time.Duration
	BatchSize  int
	// ChunkAge is how long an untouched chunk directory is kept; normally the session TTL.
	ChunkAge time.Duration
}

// CleanupService removes files that were recorded but never picked up by the
// processing worker, and chunks left behind by expired sessions.
type CleanupService struct {
	files   repository.MediaFileRepository
	objects ObjectDeleter
	chunks  AbandonedChunkSweeper
	config  CleanupConfig
	logger  *logger.Logger
	clock   func() time.Time
}

// NewCleanupService builds the sweeper. chunks may be nil when the store
// expires chunks on its own.
func NewCleanupService(files repository.MediaFileRepository, objects ObjectDeleter, chunks AbandonedChunkSweeper, config CleanupConfig, l *logger.Logger) *CleanupService {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.PendingAge <= 0 {
		config.PendingAge = 72 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.ChunkAge <= 0 {
		config.ChunkAge = time.Hour
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &CleanupService{
		files:   files,
		objects: objects,
		chunks:  chunks,
		config:  config,
		logger:  l,
		clock:   time.Now,
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	if _, err := s.SweepOrphanedPending(ctx); err != nil && ctx.Err() == nil {
		s.logger.Logger.Error("orphaned file sweep failed", zap.Error(err))
	}
	if s.chunks == nil {
		return
	}
	removed, err := s.chunks.SweepAbandoned(ctx, s.config.ChunkAge)
	if err != nil && ctx.Err() == nil {
		s.logger.Logger.Error("abandoned chunk sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Logger.Info("abandoned chunks removed", zap.Int("uploads", removed))
	}
}

// SweepOrphanedPending marks PENDING files older than the configured age
// DELETED and removes their objects. Files whose processing message is still
// queued in the outbox are left alone. Per-file failures are logged and skipped.
func (s *CleanupService) SweepOrphanedPending(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.config.PendingAge)
	files, err := s.files.ListPendingOlderThan(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		log := s.logger.Logger.With(zap.Int64("file_id", f.ID), zap.String("storage_path", f.StoragePath))

		// Claim the row first so a file the worker just activated keeps its object.
		if err := s.files.MarkDeleted(ctx, f.ID); err != nil {
			if errors.Is(err, sentinal_errors.ErrNotFound) {
				log.Info("file left pending state before sweep")
				continue
			}
			log.Warn("failed to mark orphaned file deleted", zap.Error(err))
			continue
		}
		if err := s.objects.Delete(ctx, f.StoragePath); err != nil {
			log.Warn("failed to delete orphaned file", zap.Error(err))
			continue
		}
		swept++
		metrics.OrphansSwept.Inc()
	}

	if swept > 0 {
		s.logger.Logger.Info("orphaned pending files removed", zap.Int("count", swept))
	}
	return swept, nil
}
