package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glimte/warren-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Serve declares the request queue durable and subscribes with manual
// acknowledgment. Each inbound request is decoded and handed to the handler
// together with a reply function that publishes the response to the request's
// reply address under its correlation id and then acknowledges the request.
// A request without a reply address or correlation id still reaches the
// handler, but its reply function only acknowledges: there is nowhere to
// reply, and leaving the request unacked would wedge the prefetch-1 channel.
func (r *RPC) Serve(ctx context.Context, queue string, handler RequestHandler) error {
	decl := QueueDeclaration{
		Name:    queue,
		Durable: true,
	}
	if _, err := r.cache.EnsureQueue(ctx, queue, decl, nil); err != nil {
		return err
	}

	return r.ch.Consume(ctx, queue, false, false, func(d amqp.Delivery) {
		msg := contracts.Decode(d)
		handler(ctx, msg, r.replyFunc(d))
	})
}

// replyFunc builds the exactly-once reply function for one request. The
// publish-then-ack sequence runs on the first call only; later calls return
// the first outcome without touching the broker again.
func (r *RPC) replyFunc(d amqp.Delivery) ReplyFunc {
	var once sync.Once
	var result error

	return func(ctx context.Context, payload any) error {
		once.Do(func() {
			if d.ReplyTo == "" || d.CorrelationId == "" {
				r.logger.Warn("request has no reply address, acknowledging without reply",
					"routingKey", d.RoutingKey,
					"correlationId", d.CorrelationId)
				result = r.ch.Ack(d.DeliveryTag)
				return
			}

			msg := amqp.Publishing{
				Body:          contracts.Encode(payload),
				ContentType:   "application/json",
				CorrelationId: d.CorrelationId,
				Timestamp:     time.Now(),
			}
			if err := r.ch.Publish(ctx, "", d.ReplyTo, msg); err != nil {
				result = fmt.Errorf("failed to publish reply to %s: %w", d.ReplyTo, err)
				return
			}

			result = r.ch.Ack(d.DeliveryTag)
		})
		return result
	}
}
