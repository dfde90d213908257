package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher relays processing messages onto a Redis Stream named
// "{exchange}:{routingKey}", e.g. media.exchange:media.image.process.
// Entries stay in the stream until a consumer group acknowledges and trims
// them, so a worker that is down when the message is written still gets it.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func Stream(exchange, routingKey string) string {
	return exchange + ":" + routingKey
}

// Publish appends one entry with fields payload, exchange and routing_key.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream(exchange, routingKey),
		Values: map[string]interface{}{
			"payload":     payload,
			"exchange":    exchange,
			"routing_key": routingKey,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return nil
}
