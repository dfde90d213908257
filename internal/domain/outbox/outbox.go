package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of an outbox event
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// OutboxEvent is a processing message persisted in the same transaction as
// its media file, waiting to be relayed to the dispatcher (outbox_events).
type OutboxEvent struct {
	ID            uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   string
	RoutingKey    string
	Payload       []byte
	Status        Status
	RetryCount    int
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	// NextAttemptAt is the earliest time a PENDING event may be claimed.
	NextAttemptAt time.Time
}

func NewEvent(eventType, aggregateType, aggregateID, routingKey string, payload []byte, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
		NextAttemptAt: now.UTC(),
	}
}
