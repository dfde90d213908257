package outbox

import (
	"context"
	"sync"
	"time"

	"sentinal-media/internal/domain/media"
)

type Runner struct {
	processor *Processor
	wg        sync.WaitGroup
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor}
}

// Start runs the processor in the background until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.processor.Run(ctx)
	}()
}

// Wait blocks until the background processor returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Exchange:           media.DefaultExchange,
		BatchSize:          100,
		Interval:           2 * time.Second,
		MaxRetries:         8,
		Lease:              time.Minute,
		RetryBackoff:       5 * time.Second,
		MaxBackoff:         10 * time.Minute,
		RequeueFailedAfter: time.Hour,
	}
}
