package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"sentinal-media/config"
	"sentinal-media/internal/dispatch"
	"sentinal-media/internal/outbox"
	sentinalredis "sentinal-media/internal/redis"
	"sentinal-media/internal/repository"
	"sentinal-media/internal/services"
	"sentinal-media/internal/storage"
	"sentinal-media/pkg/database"
	"sentinal-media/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// The worker relays outbox events to the media processing transport and
// sweeps orphaned uploads.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database, l)
	if err != nil {
		l.Logger.Fatal("Failed to connect to database: " + err.Error())
	}
	defer db.Close()

	redisClient := sentinalredis.NewClient(sentinalredis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	dispatcher, err := dispatch.New(cfg.Dispatch, redisClient, l)
	if err != nil {
		l.Logger.Fatal("Failed to create dispatcher: " + err.Error())
	}
	defer dispatcher.Close()

	chunks, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.LocalDir, storage.S3Config{
		Region:      cfg.S3.Region,
		Bucket:      cfg.S3.Bucket,
		AccessKey:   cfg.S3.AccessKey,
		SecretKey:   cfg.S3.SecretKey,
		Endpoint:    cfg.S3.Endpoint,
		ChunkPrefix: cfg.S3.ChunkPrefix,
		MediaPrefix: cfg.S3.MediaPrefix,
	}, l)
	if err != nil {
		l.Logger.Fatal("Failed to open chunk store: " + err.Error())
	}

	var sweeper services.AbandonedChunkSweeper
	if local, ok := chunks.(*storage.LocalChunkStore); ok {
		sweeper = local
	}

	processor := outbox.NewProcessor(repository.NewOutboxRepository(db.DB), dispatcher, outbox.ProcessorConfig{
		Exchange:           cfg.Dispatch.Exchange,
		BatchSize:          cfg.Outbox.BatchSize,
		Interval:           cfg.Outbox.Interval,
		MaxRetries:         cfg.Outbox.MaxRetries,
		Lease:              cfg.Outbox.Lease,
		RetryBackoff:       cfg.Outbox.RetryBackoff,
		MaxBackoff:         cfg.Outbox.MaxBackoff,
		RequeueFailedAfter: cfg.Outbox.RequeueFailedAfter,
	}, l)

	cleanup := services.NewCleanupService(repository.NewMediaFileRepository(db.DB), chunks, sweeper, services.CleanupConfig{
		Interval:   cfg.Cleanup.Interval,
		PendingAge: cfg.Cleanup.PendingAge,
		BatchSize:  cfg.Cleanup.BatchSize,
		ChunkAge:   cfg.Cleanup.ChunkAge,
	}, l)

	l.Infof("Worker started (dispatch=%s, storage=%s)", cfg.Dispatch.Driver, cfg.Storage.Driver)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		l.Errorf("Worker stopped with error: %s", err)
	}
	l.Infof("Worker stopped")
}
