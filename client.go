// Copyright 2024 Warren Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package warren is a client-side abstraction over a RabbitMQ channel,
// exposing three messaging patterns: fire-and-forget work queues,
// request/reply, and fanout publish/subscribe. One client drives one channel;
// the patterns share the client's topology cache and correlation table and
// are torn down together on Close.
package warren

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/warren-go/bridge"
	"github.com/glimte/warren-go/internal/rabbitmq"
	"github.com/glimte/warren-go/messaging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Client is the entry point for warren. It owns the broker connection, the
// single channel, and the pattern state for one client instance.
//
// Pattern calls after Close are invalid; the zero Client is not usable.
type Client struct {
	conn    *rabbitmq.ConnectionManager
	channel *rabbitmq.Channel

	cache  *messaging.TopologyCache
	table  *messaging.CorrelationTable
	worker *messaging.WorkerQueue
	rpc    *messaging.RPC
	pubsub *messaging.PubSub
	caller *bridge.Caller

	instanceID string
	logger     *slog.Logger
}

type clientConfig struct {
	logger      *slog.Logger
	amqpConfig  *amqp.Config
	instanceID  string
	prefetch    int
	dialTimeout time.Duration
}

// ClientOption configures the Client
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by the client and every pattern
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithAMQPConfig passes a socket and auth configuration through to the
// broker dial untouched
func WithAMQPConfig(config amqp.Config) ClientOption {
	return func(c *clientConfig) {
		c.amqpConfig = &config
	}
}

// WithInstanceID injects the session identity used to name this client's
// private queues. It defaults to a fresh UUID per client.
func WithInstanceID(id string) ClientOption {
	return func(c *clientConfig) {
		c.instanceID = id
	}
}

// WithPrefetch overrides the channel prefetch count. The default of 1 means
// at most one unacknowledged delivery at a time on the channel.
func WithPrefetch(count int) ClientOption {
	return func(c *clientConfig) {
		c.prefetch = count
	}
}

// WithDialTimeout sets the connection establishment timeout
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = timeout
	}
}

// NewClient connects to the broker, opens the client's channel, and applies
// the prefetch. The returned client is ready for pattern calls.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:      slog.Default(),
		instanceID:  uuid.NewString(),
		prefetch:    1,
		dialTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	connOpts := []rabbitmq.ConnectionOption{
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithDialTimeout(cfg.dialTimeout),
	}
	if cfg.amqpConfig != nil {
		connOpts = append(connOpts, rabbitmq.WithAMQPConfig(*cfg.amqpConfig))
	}

	conn := rabbitmq.NewConnectionManager(url, connOpts...)
	if err := conn.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	amqpConn, err := conn.GetConnection()
	if err != nil {
		conn.Close()
		return nil, err
	}

	channel, err := rabbitmq.NewChannel(amqpConn, rabbitmq.WithChannelLogger(cfg.logger))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(cfg.prefetch); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	cache := messaging.NewTopologyCache(channel, messaging.WithTopologyLogger(cfg.logger))
	table := messaging.NewCorrelationTable(messaging.WithCorrelationLogger(cfg.logger))
	rpc := messaging.NewRPC(channel, cache, table, cfg.instanceID, messaging.WithRPCLogger(cfg.logger))

	cfg.logger.Info("warren client ready",
		"instanceId", cfg.instanceID,
		"prefetch", cfg.prefetch)

	return &Client{
		conn:       conn,
		channel:    channel,
		cache:      cache,
		table:      table,
		worker:     messaging.NewWorkerQueue(channel, cache, messaging.WithWorkerLogger(cfg.logger)),
		rpc:        rpc,
		pubsub:     messaging.NewPubSub(channel, cache, cfg.instanceID, messaging.WithPubSubLogger(cfg.logger)),
		caller:     bridge.NewCaller(rpc, bridge.WithCallerLogger(cfg.logger)),
		instanceID: cfg.instanceID,
		logger:     cfg.logger,
	}, nil
}

// Worker returns the fire-and-forget work queue pattern
func (c *Client) Worker() *messaging.WorkerQueue {
	return c.worker
}

// RPC returns the request/reply pattern
func (c *Client) RPC() *messaging.RPC {
	return c.rpc
}

// PubSub returns the fanout publish/subscribe pattern
func (c *Client) PubSub() *messaging.PubSub {
	return c.pubsub
}

// Bridge returns the synchronous request/reply caller
func (c *Client) Bridge() *bridge.Caller {
	return c.caller
}

// InstanceID returns the session identity naming this client's private queues
func (c *Client) InstanceID() string {
	return c.instanceID
}

// IsConnected reports whether the broker connection is alive
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Close stops all consumers, closes the channel, then the connection
func (c *Client) Close() error {
	return errors.Join(
		c.channel.Close(),
		c.conn.Close(),
	)
}
