package messaging

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// publishOptions holds the per-call declare and publish settings
type publishOptions struct {
	durable            bool
	exclusive          bool
	autoDeleteCallback bool
	contentType        string
	headers            amqp.Table
}

// PublishOption configures a single Send, Publish, or Serve call
type PublishOption func(*publishOptions)

func newPublishOptions(opts []PublishOption) publishOptions {
	o := publishOptions{
		durable:            true,
		autoDeleteCallback: true,
		contentType:        "application/json",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDurable overrides whether the declared queue survives broker restarts
func WithDurable(durable bool) PublishOption {
	return func(o *publishOptions) {
		o.durable = durable
	}
}

// WithExclusive declares the queue visible to this channel only
func WithExclusive(exclusive bool) PublishOption {
	return func(o *publishOptions) {
		o.exclusive = exclusive
	}
}

// WithAutoDeleteCallback controls whether an RPC reply handler is removed
// after the first matching reply. Disable it to receive repeated replies
// under one correlation id.
func WithAutoDeleteCallback(autoDelete bool) PublishOption {
	return func(o *publishOptions) {
		o.autoDeleteCallback = autoDelete
	}
}

// WithContentType sets the content type stamped on the outgoing message
func WithContentType(contentType string) PublishOption {
	return func(o *publishOptions) {
		o.contentType = contentType
	}
}

// WithHeaders attaches application headers to the outgoing message
func WithHeaders(headers amqp.Table) PublishOption {
	return func(o *publishOptions) {
		o.headers = headers
	}
}

// shortID derives the compact per-instance suffix used in private queue names
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
