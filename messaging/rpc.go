package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/warren-go/contracts"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RPC implements request/reply over two queues: a shared request queue and a
// private per-client reply queue, matched by correlation id. The reply queue
// for each request queue is created lazily on the first Send and reused by
// every later one, with a single auto-ack consumer dispatching replies
// through the correlation table.
type RPC struct {
	ch         ChannelOps
	cache      *TopologyCache
	table      *CorrelationTable
	instanceID string
	logger     *slog.Logger
}

// RPCOption configures the RPC pattern
type RPCOption func(*RPC)

// WithRPCLogger sets the logger
func WithRPCLogger(logger *slog.Logger) RPCOption {
	return func(r *RPC) {
		r.logger = logger
	}
}

// NewRPC creates an RPC pattern over the given channel, cache, and table.
// instanceID is the client's session identity; it names the private reply
// queues so each client gets its own.
func NewRPC(ch ChannelOps, cache *TopologyCache, table *CorrelationTable, instanceID string, opts ...RPCOption) *RPC {
	r := &RPC{
		ch:         ch,
		cache:      cache,
		table:      table,
		instanceID: instanceID,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Send publishes a request to the named queue and registers onReply for the
// eventual reply, returning the correlation id of the pending request. The
// entry is removed after the first matching reply unless
// WithAutoDeleteCallback(false) is given; it is rolled back immediately when
// the publish fails, so no orphan awaits a reply that cannot come. There is
// no built-in timeout: callers layer one externally by calling Unregister
// when they give up (the bridge package does exactly that).
func (r *RPC) Send(ctx context.Context, queue string, payload any, onReply ReplyHandler, opts ...PublishOption) (string, error) {
	o := newPublishOptions(opts)

	replyQueue, err := r.ensureReplyQueue(ctx, queue)
	if err != nil {
		return "", err
	}

	correlationID := uuid.NewString()
	r.table.Register(correlationID, onReply, o.autoDeleteCallback)

	msg := amqp.Publishing{
		Body:          contracts.Encode(payload),
		ContentType:   o.contentType,
		CorrelationId: correlationID,
		ReplyTo:       replyQueue,
		Headers:       o.headers,
		Timestamp:     time.Now(),
	}
	if err := r.ch.Publish(ctx, "", queue, msg); err != nil {
		r.table.Unregister(correlationID)
		return "", fmt.Errorf("failed to publish request to %s: %w", queue, err)
	}

	r.logger.Debug("request sent",
		"queue", queue,
		"correlationId", correlationID,
		"replyTo", replyQueue)

	return correlationID, nil
}

// Unregister abandons a pending request so a late reply is dropped as
// unknown instead of reaching its handler.
func (r *RPC) Unregister(correlationID string) {
	r.table.Unregister(correlationID)
}

// replyQueueName derives the private reply queue for a request queue from
// this client's instance identity. The name is deterministic, so repeated
// sends within one client address the same queue.
func (r *RPC) replyQueueName(queue string) string {
	return fmt.Sprintf("%s.reply.%s", queue, shortID(r.instanceID))
}

// ensureReplyQueue declares the private reply queue for the request queue
// and attaches its reply consumer, once per client. The declare and the
// subscribe succeed or fail together: only a fully set up reply queue is
// cached.
func (r *RPC) ensureReplyQueue(ctx context.Context, queue string) (string, error) {
	logicalName := "reply." + queue

	decl := QueueDeclaration{
		Name:       r.replyQueueName(queue),
		AutoDelete: true,
		Exclusive:  true,
	}

	// The consumer must outlive the send that triggered its setup, so it is
	// detached from the per-call deadline.
	consumerCtx := context.WithoutCancel(ctx)

	q, err := r.cache.EnsureQueue(ctx, logicalName, decl, func(q amqp.Queue) error {
		return r.ch.Consume(consumerCtx, q.Name, true, true, func(d amqp.Delivery) {
			msg := contracts.Decode(d)
			if msg.CorrelationID == "" {
				r.logger.Warn("reply without correlation id dropped", "queue", q.Name)
				return
			}
			r.table.Dispatch(consumerCtx, msg.CorrelationID, msg)
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to set up reply queue for %s: %w", queue, err)
	}

	return q.Name, nil
}
