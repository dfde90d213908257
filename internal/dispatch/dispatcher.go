// Package dispatch hands processing messages to the downstream media worker.
package dispatch

import (
	"context"
	"fmt"

	"sentinal-media/config"
	"sentinal-media/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DriverRabbitMQ = "rabbitmq"
	DriverNATS     = "nats"
	DriverRedis    = "redis"
)

// Dispatcher publishes one message to exchange with routingKey. A nil error
// means the transport accepted the message.
type Dispatcher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload []byte) error
	Close() error
}

// New builds the dispatcher selected by cfg.Driver. redisClient is only used
// by the redis driver.
func New(cfg config.DispatchConfig, redisClient *goredis.Client, l *logger.Logger) (Dispatcher, error) {
	switch cfg.Driver {
	case DriverRabbitMQ, "":
		return NewRabbitMQDispatcher(cfg.RabbitMQURL, l)
	case DriverNATS:
		return NewNATSDispatcher(cfg.NATSURL, l)
	case DriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis dispatcher requires a redis client")
		}
		return NewRedisDispatcher(redisClient), nil
	default:
		return nil, fmt.Errorf("unknown dispatch driver %q", cfg.Driver)
	}
}
