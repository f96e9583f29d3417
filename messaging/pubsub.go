package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/warren-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PubSub implements fanout broadcast: every queue bound to the exchange
// receives a copy of each published message. Each client instance binds at
// most one exclusive queue per exchange, so a process never receives the same
// broadcast twice however many times it subscribes.
type PubSub struct {
	ch         ChannelOps
	cache      *TopologyCache
	instanceID string
	logger     *slog.Logger
}

// PubSubOption configures the PubSub pattern
type PubSubOption func(*PubSub)

// WithPubSubLogger sets the logger
func WithPubSubLogger(logger *slog.Logger) PubSubOption {
	return func(p *PubSub) {
		p.logger = logger
	}
}

// NewPubSub creates a pub/sub pattern over the given channel and cache
func NewPubSub(ch ChannelOps, cache *TopologyCache, instanceID string, opts ...PubSubOption) *PubSub {
	p := &PubSub{
		ch:         ch,
		cache:      cache,
		instanceID: instanceID,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish declares the non-durable fanout exchange (a broker-level no-op when
// it already exists) and broadcasts the payload with an empty routing key.
func (p *PubSub) Publish(ctx context.Context, exchange string, payload any, opts ...PublishOption) error {
	o := newPublishOptions(opts)

	if err := p.ch.DeclareExchange(ctx, exchange, "fanout", false, false); err != nil {
		return err
	}

	msg := amqp.Publishing{
		Body:        contracts.Encode(payload),
		ContentType: o.contentType,
		Headers:     o.headers,
		Timestamp:   time.Now(),
	}
	if err := p.ch.Publish(ctx, exchange, "", msg); err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", exchange, err)
	}

	p.logger.Debug("message broadcast", "exchange", exchange)
	return nil
}

// Subscribe binds an exclusive per-instance queue to the fanout exchange and
// delivers each broadcast to the handler with auto-acknowledgment. A second
// Subscribe for the same exchange reuses the existing binding and consumer
// rather than creating a duplicate.
func (p *PubSub) Subscribe(ctx context.Context, exchange string, handler Handler) error {
	if err := p.ch.DeclareExchange(ctx, exchange, "fanout", false, false); err != nil {
		return err
	}

	queueName := fmt.Sprintf("%s.%s", exchange, shortID(p.instanceID))

	_, err := p.cache.BindOnce(ctx, exchange, queueName, func(ctx context.Context) error {
		q, err := p.ch.DeclareQueue(ctx, queueName, false, true, true, nil)
		if err != nil {
			return err
		}

		if err := p.ch.BindQueue(ctx, q.Name, "", exchange); err != nil {
			return err
		}

		return p.ch.Consume(ctx, q.Name, true, true, func(d amqp.Delivery) {
			msg := contracts.Decode(d)
			if err := handler(ctx, msg); err != nil {
				p.logger.Error("subscriber handler failed",
					"exchange", exchange,
					"error", err)
			}
		})
	})
	return err
}
