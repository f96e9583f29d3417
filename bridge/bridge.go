package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/warren-go/contracts"
	"github.com/glimte/warren-go/messaging"
)

// Caller turns the asynchronous RPC pattern into a blocking call with a
// deadline.
type Caller struct {
	rpc            *messaging.RPC
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// CallerOption configures the Caller
type CallerOption func(*Caller)

// WithCallerLogger sets the logger
func WithCallerLogger(logger *slog.Logger) CallerOption {
	return func(c *Caller) {
		c.logger = logger
	}
}

// WithDefaultTimeout sets the timeout applied when the caller's context
// carries no deadline
func WithDefaultTimeout(timeout time.Duration) CallerOption {
	return func(c *Caller) {
		c.defaultTimeout = timeout
	}
}

// NewCaller creates a synchronous caller over the given RPC pattern
func NewCaller(rpc *messaging.RPC, opts ...CallerOption) *Caller {
	c := &Caller{
		rpc:            rpc,
		logger:         slog.Default(),
		defaultTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// callOptions holds the per-call settings
type callOptions struct {
	timeout     time.Duration
	publishOpts []messaging.PublishOption
}

// CallOption configures a single Call
type CallOption func(*callOptions)

// WithTimeout overrides the deadline for this call
func WithTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// WithPublishOptions forwards declare and publish settings to the underlying
// RPC send
func WithPublishOptions(opts ...messaging.PublishOption) CallOption {
	return func(o *callOptions) {
		o.publishOpts = opts
	}
}

// Call sends an RPC request and blocks until the reply arrives or the
// deadline passes. On expiry the pending correlation entry is unregistered,
// so a late reply is dropped instead of leaking to a handler nobody waits on.
func (c *Caller) Call(ctx context.Context, queue string, payload any, opts ...CallOption) (*contracts.Message, error) {
	o := callOptions{timeout: c.defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	replyCh := make(chan *contracts.Message, 1)
	id, err := c.rpc.Send(ctx, queue, payload, func(_ context.Context, msg *contracts.Message) {
		select {
		case replyCh <- msg:
		default:
		}
	}, o.publishOpts...)
	if err != nil {
		return nil, err
	}

	select {
	case msg := <-replyCh:
		return msg, nil

	case <-ctx.Done():
		c.rpc.Unregister(id)
		c.logger.Warn("request abandoned",
			"queue", queue,
			"correlationId", id)
		return nil, fmt.Errorf("request to %s abandoned: %w", queue, ctx.Err())
	}
}
