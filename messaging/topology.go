package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"
)

// QueueDeclaration describes a queue to declare. Name is the actual broker
// name; the cache keys entries by a logical name that may differ from it,
// which is how private RPC reply queues stay addressable by their request
// queue.
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       amqp.Table
}

// BindBuilder performs the declare-and-bind work for a fresh exchange
// binding. It runs at most once per exchange per cache.
type BindBuilder func(ctx context.Context) error

// TopologyCache remembers which queues and exchange bindings this client has
// already set up, so patterns can declare lazily without duplicating work.
// First-time setups are serialized per logical name: concurrent callers wait
// on the same in-flight setup instead of each declaring their own.
type TopologyCache struct {
	ch     ChannelOps
	logger *slog.Logger

	mu       sync.RWMutex
	queues   map[string]amqp.Queue
	bindings map[string]string

	setup singleflight.Group
}

// TopologyCacheOption configures the TopologyCache
type TopologyCacheOption func(*TopologyCache)

// WithTopologyLogger sets the logger
func WithTopologyLogger(logger *slog.Logger) TopologyCacheOption {
	return func(c *TopologyCache) {
		c.logger = logger
	}
}

// NewTopologyCache creates a cache driving the given channel
func NewTopologyCache(ch ChannelOps, opts ...TopologyCacheOption) *TopologyCache {
	c := &TopologyCache{
		ch:       ch,
		logger:   slog.Default(),
		queues:   make(map[string]amqp.Queue),
		bindings: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Declare declares the queue and records it under logicalName. A logical
// name that is already cached is a caller hint, not a guard: the conflict is
// logged and the queue is declared again, replacing the cached descriptor.
func (c *TopologyCache) Declare(ctx context.Context, logicalName string, decl QueueDeclaration) (amqp.Queue, error) {
	if _, ok := c.Lookup(logicalName); ok {
		c.logger.Warn("queue already declared under logical name, redeclaring",
			"logicalName", logicalName)
	}

	if decl.Name == "" {
		decl.Name = logicalName
	}

	q, err := c.ch.DeclareQueue(ctx, decl.Name, decl.Durable, decl.AutoDelete, decl.Exclusive, decl.Args)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", decl.Name, err)
	}

	c.mu.Lock()
	c.queues[logicalName] = q
	c.mu.Unlock()

	return q, nil
}

// Lookup returns the cached descriptor for a logical name
func (c *TopologyCache) Lookup(logicalName string) (amqp.Queue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.queues[logicalName]
	return q, ok
}

// EnsureQueue returns the cached descriptor for logicalName, declaring the
// queue first if it is absent. When setup is non-nil it runs after a
// successful declare and before the entry is cached; a setup failure leaves
// the logical name absent so the next caller retries the whole sequence.
// Concurrent calls for the same logical name share one declare and one setup.
func (c *TopologyCache) EnsureQueue(ctx context.Context, logicalName string, decl QueueDeclaration, setup func(q amqp.Queue) error) (amqp.Queue, error) {
	if q, ok := c.Lookup(logicalName); ok {
		return q, nil
	}

	v, err, _ := c.setup.Do(logicalName, func() (any, error) {
		if q, ok := c.Lookup(logicalName); ok {
			return q, nil
		}

		if decl.Name == "" {
			decl.Name = logicalName
		}

		q, err := c.ch.DeclareQueue(ctx, decl.Name, decl.Durable, decl.AutoDelete, decl.Exclusive, decl.Args)
		if err != nil {
			return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", decl.Name, err)
		}

		if setup != nil {
			if err := setup(q); err != nil {
				return amqp.Queue{}, err
			}
		}

		c.mu.Lock()
		c.queues[logicalName] = q
		c.mu.Unlock()

		return q, nil
	})
	if err != nil {
		return amqp.Queue{}, err
	}
	return v.(amqp.Queue), nil
}

// BindOnce guarantees at most one bound queue per exchange for this client.
// When no binding exists, or the recorded queue differs from queueName, the
// builder runs and the binding is recorded; otherwise the existing bound
// queue name is returned without further broker work. Concurrent first-time
// callers share one builder run.
func (c *TopologyCache) BindOnce(ctx context.Context, exchange, queueName string, build BindBuilder) (string, error) {
	if bound, ok := c.BoundQueue(exchange); ok && bound == queueName {
		c.logger.Debug("exchange already bound, reusing queue",
			"exchange", exchange, "queue", bound)
		return bound, nil
	}

	v, err, _ := c.setup.Do("bind:"+exchange, func() (any, error) {
		if bound, ok := c.BoundQueue(exchange); ok && bound == queueName {
			return bound, nil
		}

		if err := build(ctx); err != nil {
			return "", fmt.Errorf("failed to bind queue %s to exchange %s: %w", queueName, exchange, err)
		}

		c.mu.Lock()
		c.bindings[exchange] = queueName
		c.mu.Unlock()

		return queueName, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// BoundQueue returns the queue currently bound to the exchange, if any
func (c *TopologyCache) BoundQueue(exchange string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.bindings[exchange]
	return name, ok
}
