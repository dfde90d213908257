package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"sentinal-media/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrUnroutable is returned when the broker hands a mandatory message back
// because no queue is bound for its routing key.
var ErrUnroutable = errors.New("message unroutable")

var errDispatcherClosed = errors.New("rabbitmq dispatcher closed")

// amqpChannel is the part of *amqp.Channel the dispatcher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// amqpSession is one connection plus the channel opened on it. closed fires
// when either the channel or its connection goes away.
type amqpSession struct {
	conn     io.Closer
	channel  amqpChannel
	closed   <-chan *amqp.Error
	returns  <-chan amqp.Return
	confirms bool
}

func (s *amqpSession) alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *amqpSession) close() error {
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}

type dialFunc func() (*amqpSession, error)

func dialRabbitMQ(url string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &amqpSession{
		conn:     conn,
		channel:  ch,
		closed:   ch.NotifyClose(make(chan *amqp.Error, 1)),
		returns:  ch.NotifyReturn(make(chan amqp.Return, 8)),
		confirms: true,
	}, nil
}

// RabbitMQDispatcher publishes persistent JSON messages to durable topic
// exchanges and waits for the broker confirm. A lost connection or channel is
// replaced on the next Publish.
type RabbitMQDispatcher struct {
	dial     dialFunc
	logger   *logger.Logger
	mu       sync.Mutex
	session  *amqpSession
	declared map[string]struct{}
	shut     bool
}

func NewRabbitMQDispatcher(url string, l *logger.Logger) (*RabbitMQDispatcher, error) {
	d := newRabbitMQDispatcherWithDialer(func() (*amqpSession, error) { return dialRabbitMQ(url) }, l)
	// Dial up front so a bad URL fails at startup.
	s, err := d.dial()
	if err != nil {
		return nil, err
	}
	d.session = s
	return d, nil
}

func newRabbitMQDispatcherWithDialer(dial dialFunc, l *logger.Logger) *RabbitMQDispatcher {
	if l == nil {
		l = logger.NewNop()
	}
	return &RabbitMQDispatcher{
		dial:     dial,
		logger:   l,
		declared: make(map[string]struct{}),
	}
}

// ensureSession must be called with mu held.
func (d *RabbitMQDispatcher) ensureSession() (*amqpSession, error) {
	if d.shut {
		return nil, errDispatcherClosed
	}
	if d.session != nil && d.session.alive() {
		return d.session, nil
	}
	if d.session != nil {
		d.logger.Logger.Warn("rabbitmq session lost, reconnecting")
		d.dropSession()
	}
	s, err := d.dial()
	if err != nil {
		return nil, fmt.Errorf("reconnect to rabbitmq: %w", err)
	}
	d.session = s
	d.declared = make(map[string]struct{})
	return s, nil
}

func (d *RabbitMQDispatcher) dropSession() {
	if d.session == nil {
		return
	}
	_ = d.session.close()
	d.session = nil
}

func (d *RabbitMQDispatcher) declare(s *amqpSession, exchange string) error {
	if _, ok := d.declared[exchange]; ok {
		return nil
	}
	if err := s.channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	d.declared[exchange] = struct{}{}
	return nil
}

func (d *RabbitMQDispatcher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.ensureSession()
	if err != nil {
		return err
	}
	if err := d.publish(ctx, s, exchange, routingKey, payload); err != nil {
		// Any AMQP protocol error closes the channel; start over next time.
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) || !s.alive() {
			d.dropSession()
		}
		return err
	}
	return nil
}

func (d *RabbitMQDispatcher) publish(ctx context.Context, s *amqpSession, exchange, routingKey string, payload []byte) error {
	if err := d.declare(s, exchange); err != nil {
		return err
	}
	drainReturns(s.returns)

	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	if s.confirms && confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait for confirm: %w", err)
		}
		if !acked {
			return errors.New("broker nacked message")
		}
	}

	// The broker sends basic.return ahead of the ack for the same message.
	select {
	case r, ok := <-s.returns:
		if ok {
			return fmt.Errorf("%w: %s/%s: %s", ErrUnroutable, r.Exchange, r.RoutingKey, r.ReplyText)
		}
	default:
	}

	d.logger.Logger.Debug("processing message published",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
	)
	return nil
}

func drainReturns(returns <-chan amqp.Return) {
	for {
		select {
		case _, ok := <-returns:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (d *RabbitMQDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shut = true
	if d.session == nil {
		return nil
	}
	err := d.session.close()
	d.session = nil
	return err
}
