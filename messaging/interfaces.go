package messaging

import (
	"context"

	"github.com/glimte/warren-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelOps is the broker channel contract the pattern layer drives. The
// live implementation is the single amqp channel owned by the client; tests
// substitute a mock.
type ChannelOps interface {
	// DeclareQueue declares a queue and returns its descriptor.
	DeclareQueue(ctx context.Context, name string, durable, autoDelete, exclusive bool, args amqp.Table) (amqp.Queue, error)

	// DeclareExchange declares an exchange of the given kind.
	DeclareExchange(ctx context.Context, name, kind string, durable, autoDelete bool) error

	// BindQueue binds a queue to an exchange under a routing key.
	BindQueue(ctx context.Context, queue, routingKey, exchange string) error

	// Publish sends a message to an exchange with a routing key. An empty
	// exchange publishes directly to the queue named by the routing key.
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error

	// Consume starts delivering messages from the queue to the handler.
	Consume(ctx context.Context, queue string, autoAck, exclusive bool, handler func(amqp.Delivery)) error

	// Ack acknowledges a single delivery by tag.
	Ack(deliveryTag uint64) error
}

// Handler processes a decoded inbound message. Under auto-acknowledgment a
// returned error is logged, not requeued.
type Handler func(ctx context.Context, msg *contracts.Message) error

// ReplyHandler receives the decoded reply to an RPC request.
type ReplyHandler func(ctx context.Context, msg *contracts.Message)

// ReplyFunc publishes a response to an RPC request and acknowledges the
// request exactly once. Further calls are no-ops returning the first outcome.
// When the request carried no reply address, ReplyFunc only acknowledges.
type ReplyFunc func(ctx context.Context, payload any) error

// RequestHandler processes an RPC request. It is expected to call reply;
// until it does, the request stays unacknowledged on the channel.
type RequestHandler func(ctx context.Context, msg *contracts.Message, reply ReplyFunc)
