package main

import (
	"context"
	"log"

	"sentinal-media/config"
	"sentinal-media/internal/dispatch"
	"sentinal-media/internal/handler"
	"sentinal-media/internal/middleware"
	"sentinal-media/internal/outbox"
	sentinalredis "sentinal-media/internal/redis"
	"sentinal-media/internal/repository"
	"sentinal-media/internal/server"
	"sentinal-media/internal/services"
	"sentinal-media/internal/storage"
	"sentinal-media/migrations"
	"sentinal-media/pkg/database"
	"sentinal-media/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrations.Up(cfg.Database.DSN()); err != nil {
		l.Logger.Fatal("Failed to apply migrations: " + err.Error())
	}

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
	if err := sentinalredis.Ping(ctx, redisClient); err != nil {
		l.Logger.Fatal("Failed to connect to redis: " + err.Error())
	}

	chunks, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.LocalDir, s3Config(cfg.S3), l)
	if err != nil {
		l.Logger.Fatal("Failed to open chunk store: " + err.Error())
	}

	fileRepo := repository.NewMediaFileRepository(db.DB)
	outboxRepo := repository.NewOutboxRepository(db.DB)
	recorder := services.NewTxMediaRecorder(db.DB, fileRepo, services.NewEventPublisher(outboxRepo))

	sessions := sentinalredis.NewSessionStore(redisClient, sentinalredis.SessionStoreConfig{TTL: cfg.Upload.SessionTTL})
	uploadService := services.NewUploadService(sessions, chunks, recorder, services.UploadConfig{
		SessionTTL:    cfg.Upload.SessionTTL,
		MaxChunkBytes: cfg.Upload.MaxChunkBytes,
		MaxFileBytes:  cfg.Upload.MaxFileBytes,
		MaxChunkCount: cfg.Upload.MaxChunkCount,
	}, l)

	var runner *outbox.Runner
	if cfg.RunOutboxInAPI {
		dispatcher, err := dispatch.New(cfg.Dispatch, redisClient, l)
		if err != nil {
			l.Logger.Fatal("Failed to create dispatcher: " + err.Error())
		}
		defer dispatcher.Close()

		runner = outbox.NewRunner(outbox.NewProcessor(outboxRepo, dispatcher, outbox.ProcessorConfig{
			Exchange:           cfg.Dispatch.Exchange,
			BatchSize:          cfg.Outbox.BatchSize,
			Interval:           cfg.Outbox.Interval,
			MaxRetries:         cfg.Outbox.MaxRetries,
			Lease:              cfg.Outbox.Lease,
			RetryBackoff:       cfg.Outbox.RetryBackoff,
			MaxBackoff:         cfg.Outbox.MaxBackoff,
			RequeueFailedAfter: cfg.Outbox.RequeueFailedAfter,
		}, l))
		runner.Start(ctx)
		l.Infof("Outbox relay running in-process (driver=%s)", cfg.Dispatch.Driver)
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(
		&server.Handlers{Upload: handler.NewUploadHandler(uploadService)},
		middleware.NewTokenVerifier(cfg.JWTSecret),
		map[string]server.HealthCheck{
			"postgres": db.Ping,
			"redis": func(ctx context.Context) error {
				return sentinalredis.Ping(ctx, redisClient)
			},
		},
	)

	if err := srv.Start(); err != nil {
		l.Errorf("Server stopped with error: %s", err)
	}

	cancel()
	if runner != nil {
		runner.Wait()
	}
}

func s3Config(c config.S3Config) storage.S3Config {
	return storage.S3Config{
		Region:      c.Region,
		Bucket:      c.Bucket,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Endpoint:    c.Endpoint,
		ChunkPrefix: c.ChunkPrefix,
		MediaPrefix: c.MediaPrefix,
	}
}
