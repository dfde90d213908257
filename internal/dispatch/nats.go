package dispatch

import (
	"context"
	"fmt"
	"time"

	"sentinal-media/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ExchangeHeader carries the logical exchange name; the subject is the routing key.
const ExchangeHeader = "Exchange"

type NATSDispatcher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

func NewNATSDispatcher(url string, l *logger.Logger) (*NATSDispatcher, error) {
	if l == nil {
		l = logger.NewNop()
	}
	opts := []nats.Option{
		nats.Name("sentinal-media-dispatcher"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			l.Logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSDispatcher{conn: conn, logger: l}, nil
}

// Publish flushes before returning so a nil error means the server has the message.
func (d *NATSDispatcher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	msg := &nats.Msg{
		Subject: routingKey,
		Data:    payload,
		Header:  nats.Header{ExchangeHeader: []string{exchange}},
	}
	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", routingKey, err)
	}
	if err := d.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (d *NATSDispatcher) Close() error {
	if d.conn != nil {
		return d.conn.Drain()
	}
	return nil
}
