package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/domain/outbox"
	"sentinal-media/internal/repository"
)

// EventPublisher writes processing messages to the outbox table for reliable delivery
type EventPublisher struct {
	outboxRepo repository.OutboxRepository
	clock      func() time.Time
}

func NewEventPublisher(outboxRepo repository.OutboxRepository) *EventPublisher {
	return &EventPublisher{outboxRepo: outboxRepo, clock: time.Now}
}

// PublishFileUploaded queues the processing message for f inside tx.
func (p *EventPublisher) PublishFileUploaded(ctx context.Context, tx repository.DBTX, f *media.MediaFile) error {
	payload, err := json.Marshal(media.NewProcessingMessage(f))
	if err != nil {
		return fmt.Errorf("marshal processing message: %w", err)
	}
	event := outbox.NewEvent(
		media.EventTypeFileUploaded,
		media.AggregateTypeFile,
		strconv.FormatInt(f.ID, 10),
		media.RoutingKey(f.MediaType),
		payload,
		p.clock(),
	)
	return p.outboxRepo.Create(ctx, tx, event)
}
