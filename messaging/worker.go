package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/warren-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// WorkerQueue implements fire-and-forget task delivery: producers send to a
// named queue, and any one consumer among the queue's subscribers processes
// each task.
type WorkerQueue struct {
	ch     ChannelOps
	cache  *TopologyCache
	logger *slog.Logger
}

// WorkerOption configures the WorkerQueue
type WorkerOption func(*WorkerQueue)

// WithWorkerLogger sets the logger
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *WorkerQueue) {
		w.logger = logger
	}
}

// NewWorkerQueue creates a worker pattern over the given channel and cache
func NewWorkerQueue(ch ChannelOps, cache *TopologyCache, opts ...WorkerOption) *WorkerQueue {
	w := &WorkerQueue{
		ch:     ch,
		cache:  cache,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Send publishes a task to the named queue, declaring it first if this client
// has not seen it yet (durable by default). Send returns once the publish
// call returns; there is no publisher-confirm round trip.
func (w *WorkerQueue) Send(ctx context.Context, queue string, payload any, opts ...PublishOption) error {
	o := newPublishOptions(opts)

	decl := QueueDeclaration{
		Name:      queue,
		Durable:   o.durable,
		Exclusive: o.exclusive,
	}
	if _, err := w.cache.EnsureQueue(ctx, queue, decl, nil); err != nil {
		return err
	}

	msg := amqp.Publishing{
		Body:        contracts.Encode(payload),
		ContentType: o.contentType,
		Headers:     o.headers,
		Timestamp:   time.Now(),
	}
	if err := w.ch.Publish(ctx, "", queue, msg); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queue, err)
	}

	w.logger.Debug("task sent", "queue", queue)
	return nil
}

// Consume declares the queue durable and subscribes with auto-acknowledgment:
// the broker considers each message delivered as soon as it is handed over,
// so a handler error is logged, never requeued.
func (w *WorkerQueue) Consume(ctx context.Context, queue string, handler Handler) error {
	decl := QueueDeclaration{
		Name:    queue,
		Durable: true,
	}
	if _, err := w.cache.EnsureQueue(ctx, queue, decl, nil); err != nil {
		return err
	}

	return w.ch.Consume(ctx, queue, true, false, func(d amqp.Delivery) {
		msg := contracts.Decode(d)
		if err := handler(ctx, msg); err != nil {
			w.logger.Error("worker handler failed",
				"queue", queue,
				"error", err)
		}
	})
}
