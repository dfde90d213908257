package dispatch

import (
	mediaredis "sentinal-media/internal/redis"

	goredis "github.com/redis/go-redis/v9"
)

// NewRedisDispatcher appends to the "{exchange}:{routingKey}" Redis Stream.
func NewRedisDispatcher(client *goredis.Client) Dispatcher {
	return mediaredis.NewPublisher(client)
}
