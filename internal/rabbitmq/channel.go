package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the single broker channel a warren client drives. It wraps the
// amqp channel with the declare/publish/consume/ack primitives the pattern
// layer needs and tracks the consumers it starts so Close can stop them.
type Channel struct {
	ch     *amqp.Channel
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	consumers map[string]context.CancelFunc
}

// ChannelOption configures the Channel
type ChannelOption func(*Channel)

// WithChannelLogger sets the logger
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// NewChannel opens a channel on the given connection
func NewChannel(conn *amqp.Connection, options ...ChannelOption) (*Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	c := &Channel{
		ch:        ch,
		logger:    slog.Default(),
		consumers: make(map[string]context.CancelFunc),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Qos sets the prefetch count for this channel
func (c *Channel) Qos(prefetchCount int) error {
	return c.ch.Qos(prefetchCount, 0, false)
}

// DeclareQueue declares a queue and returns its descriptor
func (c *Channel) DeclareQueue(ctx context.Context, name string, durable, autoDelete, exclusive bool, args amqp.Table) (amqp.Queue, error) {
	if err := ctx.Err(); err != nil {
		return amqp.Queue{}, err
	}

	q, err := c.ch.QueueDeclare(
		name,
		durable,
		autoDelete,
		exclusive,
		false, // no-wait
		args,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return q, nil
}

// DeclareExchange declares an exchange of the given kind
func (c *Channel) DeclareExchange(ctx context.Context, name, kind string, durable, autoDelete bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.ch.ExchangeDeclare(
		name,
		kind,
		durable,
		autoDelete,
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// BindQueue binds a queue to an exchange
func (c *Channel) BindQueue(ctx context.Context, queue, routingKey, exchange string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.ch.QueueBind(queue, routingKey, exchange, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s: %w", queue, exchange, err)
	}
	return nil
}

// Publish sends a message to the given exchange and routing key
func (c *Channel) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	err := c.ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

// Consume starts delivering messages from the queue to the handler on a
// dedicated goroutine. The consumer runs until the channel is closed or the
// context is cancelled.
func (c *Channel) Consume(ctx context.Context, queue string, autoAck, exclusive bool, handler func(amqp.Delivery)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	deliveries, err := c.ch.Consume(
		queue,
		"", // broker-assigned consumer tag
		autoAck,
		exclusive,
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", queue, err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.consumers[queue] = cancel
	c.mu.Unlock()

	go c.processDeliveries(consumerCtx, queue, deliveries, handler)

	c.logger.Info("subscribed to queue",
		"queue", queue,
		"autoAck", autoAck,
	)

	return nil
}

func (c *Channel) processDeliveries(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler func(amqp.Delivery)) {
	defer func() {
		c.mu.Lock()
		delete(c.consumers, queue)
		c.mu.Unlock()
		c.logger.Info("consumer stopped", "queue", queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", queue)
				return
			}
			handler(delivery)
		}
	}
}

// Ack acknowledges a single delivery by tag
func (c *Channel) Ack(deliveryTag uint64) error {
	return c.ch.Ack(deliveryTag, false)
}

// Close stops all consumers and closes the channel
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, cancel := range c.consumers {
		cancel()
	}
	c.mu.Unlock()

	return c.ch.Close()
}
