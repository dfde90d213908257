// Package outbox relays committed processing messages to the dispatcher.
package outbox

import (
	"context"
	"time"

	"sentinal-media/internal/dispatch"
	"sentinal-media/internal/domain/outbox"
	"sentinal-media/internal/metrics"
	"sentinal-media/internal/repository"
	"sentinal-media/pkg/logger"

	"go.uber.org/zap"
)

type ProcessorConfig struct {
	Exchange   string
	BatchSize  int
	Interval   time.Duration
	MaxRetries int
	Lease      time.Duration
	// RetryBackoff is the delay after the first failed publish; it doubles
	// per attempt up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// RequeueFailedAfter is how long an event parks in FAILED before it gets
	// a fresh retry budget.
	RequeueFailedAfter time.Duration
}

type Processor struct {
	repo         repository.OutboxRepository
	dispatcher   dispatch.Dispatcher
	logger       *logger.Logger
	exchange     string
	batchSize    int
	interval     time.Duration
	maxRetries   int
	lease        time.Duration
	backoff      time.Duration
	maxBackoff   time.Duration
	requeueAfter time.Duration
}

func NewProcessor(repo repository.OutboxRepository, dispatcher dispatch.Dispatcher, cfg ProcessorConfig, l *logger.Logger) *Processor {
	def := DefaultProcessorConfig()
	if cfg.Exchange == "" {
		cfg.Exchange = def.Exchange
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	if cfg.RequeueFailedAfter <= 0 {
		cfg.RequeueFailedAfter = def.RequeueFailedAfter
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Processor{
		repo:         repo,
		dispatcher:   dispatcher,
		logger:       l,
		exchange:     cfg.Exchange,
		batchSize:    cfg.BatchSize,
		interval:     cfg.Interval,
		maxRetries:   cfg.MaxRetries,
		lease:        cfg.Lease,
		backoff:      cfg.RetryBackoff,
		maxBackoff:   cfg.MaxBackoff,
		requeueAfter: cfg.RequeueFailedAfter,
	}
}

// Run polls until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.RequeueFailed(ctx)
			for {
				// Keep draining while batches come back full.
				n, err := p.ProcessBatch(ctx)
				if err != nil || n < p.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RequeueFailed gives parked FAILED events another round of retries.
func (p *Processor) RequeueFailed(ctx context.Context) (int64, error) {
	n, err := p.repo.RequeueFailed(ctx, p.requeueAfter, p.batchSize)
	if err != nil {
		p.logger.Logger.Error("failed to requeue failed outbox events", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		p.logger.Logger.Info("requeued failed outbox events", zap.Int64("count", n))
	}
	return n, nil
}

// Backoff returns the delay before attempt number attempt (1-based) is
// retried: RetryBackoff doubled per prior attempt, capped at MaxBackoff.
func (p *Processor) Backoff(attempt int) time.Duration {
	d := p.backoff
	for i := 1; i < attempt && d < p.maxBackoff; i++ {
		d *= 2
	}
	return min(d, p.maxBackoff)
}

// ProcessBatch claims and relays one batch. It returns the number of events claimed.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := p.repo.ClaimPending(ctx, p.batchSize, p.lease)
	if err != nil {
		p.logger.Logger.Error("failed to claim outbox events", zap.Error(err))
		return 0, err
	}

	for _, e := range batch {
		p.relay(ctx, e)
	}
	return len(batch), nil
}

func (p *Processor) relay(ctx context.Context, e outbox.OutboxEvent) {
	log := p.logger.Logger.With(
		zap.String("event_id", e.ID.String()),
		zap.String("routing_key", e.RoutingKey),
		zap.String("aggregate_id", e.AggregateID),
	)

	if err := p.dispatcher.Publish(ctx, p.exchange, e.RoutingKey, e.Payload); err != nil {
		if e.RetryCount+1 >= p.maxRetries {
			metrics.OutboxPublishes.WithLabelValues(metrics.ResultFailed).Inc()
			log.Error("outbox event exhausted retries, parked until requeue",
				zap.Int("retry_count", e.RetryCount+1),
				zap.Duration("requeue_after", p.requeueAfter),
				zap.Error(err),
			)
			if markErr := p.repo.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				log.Error("failed to mark outbox event failed", zap.Error(markErr))
			}
			return
		}
		delay := p.Backoff(e.RetryCount + 1)
		metrics.OutboxPublishes.WithLabelValues(metrics.ResultRetry).Inc()
		log.Warn("outbox publish failed, will retry",
			zap.Int("retry_count", e.RetryCount+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if markErr := p.repo.MarkRetry(ctx, e.ID, err.Error(), time.Now().Add(delay)); markErr != nil {
			log.Error("failed to schedule outbox retry", zap.Error(markErr))
		}
		return
	}

	metrics.OutboxPublishes.WithLabelValues(metrics.ResultOK).Inc()
	// A failed mark leaves the row PROCESSING; it is re-sent after the lease.
	if err := p.repo.MarkCompleted(ctx, e.ID); err != nil {
		log.Error("failed to mark outbox event completed", zap.Error(err))
		return
	}
	log.Debug("outbox event relayed")
}
